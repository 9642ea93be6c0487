// Package credentials implements the leaky-bucket credential pool (C2):
// it hands out time-budgeted permits to use one of N LLM credentials while
// respecting each credential's TPM/RPM budget, serialises per-credential
// use, and supports permanent quarantine after a non-transient provider
// error.
package credentials

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"voxpersona/internal/apperr"
	"voxpersona/internal/config"
)

// Status is the outcome a caller reports back to Release.
type Status int

const (
	StatusOK Status = iota
	StatusCancelled
	StatusError
)

type credential struct {
	id  string
	key string

	tokenLimiter   *rate.Limiter
	requestLimiter *rate.Limiter

	mu          sync.Mutex // serialises use of this credential
	inUse       bool
	quarantined bool
}

// Permit is returned by Acquire. The caller must call Release exactly once.
type Permit struct {
	ID  string
	Key string

	pool      *Pool
	cred      *credential
	estimated int
}

// Pool holds the configured credentials and hands out permits.
type Pool struct {
	mu    sync.Mutex // guards selection+claim across credentials, atomically
	creds []*credential

	// release is closed and replaced every time a credential frees up
	// (Release, or an abandoned claim), waking every Acquire call currently
	// blocked because all non-quarantined credentials were in use.
	release chan struct{}
}

// New constructs a Pool from the configured credential list. Each
// credential gets two independent leaky buckets (rate.Limiter), with burst
// equal to the per-minute budget so a cold pool can serve one full minute's
// worth of traffic immediately, matching spec.md's "capacity equal to the
// per-minute budget" description.
func New(cfgs []config.CredentialConfig) *Pool {
	p := &Pool{release: make(chan struct{})}
	for _, c := range cfgs {
		p.creds = append(p.creds, &credential{
			id:             c.ID,
			key:            c.Secret,
			tokenLimiter:   rate.NewLimiter(rate.Limit(float64(c.TPM)/60.0), max1(c.TPM)),
			requestLimiter: rate.NewLimiter(rate.Limit(float64(c.RPM)/60.0), max1(c.RPM)),
		})
	}
	return p
}

func max1(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

// Acquire blocks until some non-quarantined credential can serve
// estimatedTokens without violating either its TPM or RPM budget, then
// locks that credential for exclusive use and returns a Permit. It fails
// fast with apperr.Timeout when no credential exists, when every
// credential is permanently quarantined, or when ctx is already done;
// serial-lock contention (every credential momentarily in use by another
// caller) and rate-budget delay are both ordinary wait conditions, per
// spec.md §4.2/§5 — Acquire blocks rather than erroring until a
// credential can be used or ctx is done.
func (p *Pool) Acquire(ctx context.Context, estimatedTokens int) (*Permit, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, apperr.Wrap(apperr.Timeout, "acquire cancelled before a credential was granted", err)
		}
		cred, wait, ok, err := p.claimFeasible(estimatedTokens)
		if err != nil {
			return nil, err
		}
		if !ok {
			// No free credential could take a reservation: each is claimed
			// by another in-flight Acquire, or its bucket capacity is below
			// the estimate. Block until one is released, then retry
			// selection from scratch.
			if err := p.waitForRelease(ctx); err != nil {
				return nil, err
			}
			continue
		}

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				// The credential was already claimed for us; give it back
				// since we never got to use it.
				p.abandon(cred)
				return nil, apperr.Wrap(apperr.Timeout, "acquire cancelled while queued", ctx.Err())
			case <-timer.C:
			}
		}
		return &Permit{ID: cred.id, Key: cred.key, pool: p, cred: cred, estimated: max1(estimatedTokens)}, nil
	}
}

// claimFeasible selects the credential with the earliest feasible
// not_before instant, breaking ties by larger remaining token capacity so
// large jobs favour the highest-TPM credential, and claims it (inUse=true)
// before returning. Selection and claim happen under the same p.mu
// critical section, so two concurrent calls can never both claim the same
// credential. ok is false (err nil) when no non-quarantined credential can
// be claimed right now, because each is claimed elsewhere or cannot fit
// estimatedTokens within its bucket capacity — a wait condition, not a
// failure.
func (p *Pool) claimFeasible(estimatedTokens int) (cred *credential, wait time.Duration, ok bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	type candidate struct {
		cred     *credential
		wait     time.Duration
		tokens   float64
		tokenRes *rate.Reservation
		reqRes   *rate.Reservation
	}
	var candidates []candidate
	anyUsable := false
	now := time.Now()

	for _, c := range p.creds {
		c.mu.Lock()
		quarantined := c.quarantined
		busy := c.inUse
		c.mu.Unlock()
		if quarantined {
			continue
		}
		anyUsable = true
		if busy {
			continue
		}
		tokenRes := c.tokenLimiter.ReserveN(now, max1(estimatedTokens))
		if !tokenRes.OK() {
			continue
		}
		reqRes := c.requestLimiter.ReserveN(now, 1)
		if !reqRes.OK() {
			tokenRes.Cancel()
			continue
		}
		tokenWait := tokenRes.DelayFrom(now)
		reqWait := reqRes.DelayFrom(now)
		w := tokenWait
		if reqWait > w {
			w = reqWait
		}
		candidates = append(candidates, candidate{
			cred: c, wait: w, tokens: float64(c.tokenLimiter.Tokens()),
			tokenRes: tokenRes, reqRes: reqRes,
		})
	}

	if !anyUsable {
		return nil, 0, false, apperr.New(apperr.Timeout, "no credentials configured or all quarantined")
	}
	if len(candidates) == 0 {
		// No free credential could reserve the estimate: each is in use
		// right now or its bucket capacity is below the estimate. The
		// caller waits for a release signal and retries; no reservation
		// was kept, so nothing to cancel.
		return nil, 0, false, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].wait != candidates[j].wait {
			return candidates[i].wait < candidates[j].wait
		}
		return candidates[i].tokens > candidates[j].tokens
	})

	// Only the winning candidate's reservation stands; every other
	// candidate's speculative reservation is cancelled so it doesn't
	// consume budget it was never granted.
	for _, cand := range candidates[1:] {
		cand.tokenRes.Cancel()
		cand.reqRes.Cancel()
	}

	best := candidates[0]
	best.cred.mu.Lock()
	best.cred.inUse = true
	best.cred.mu.Unlock()
	return best.cred, best.wait, true, nil
}

// abandon releases a credential claimed by claimFeasible but never put to
// use, e.g. when the caller's context is cancelled while waiting out the
// rate-limit delay.
func (p *Pool) abandon(c *credential) {
	c.mu.Lock()
	c.inUse = false
	c.mu.Unlock()
	p.signalRelease()
}

// signalRelease wakes every Acquire call currently blocked in
// waitForRelease. Closing-and-replacing the channel under p.mu is a
// standard broadcast idiom: every waiter holds the channel value it was
// given before blocking, so replacing it here never races a waiter that
// already woke up.
func (p *Pool) signalRelease() {
	p.mu.Lock()
	ch := p.release
	p.release = make(chan struct{})
	p.mu.Unlock()
	close(ch)
}

// waitForRelease blocks until signalRelease fires or ctx is done.
func (p *Pool) waitForRelease(ctx context.Context) error {
	p.mu.Lock()
	ch := p.release
	p.mu.Unlock()
	select {
	case <-ctx.Done():
		return apperr.Wrap(apperr.Timeout, "acquire cancelled while waiting for a credential", ctx.Err())
	case <-ch:
		return nil
	}
}

// Release records actual usage and frees the credential. actualTokens may
// differ from the estimate; if it exceeds the estimate by more than 20%,
// the accountant reserves the difference so the next acquisition is
// delayed accordingly. Under-estimates never raise an error.
func (p *Permit) Release(actualTokens int, status Status) {
	p.cred.mu.Lock()
	p.cred.inUse = false
	p.cred.mu.Unlock()
	p.pool.signalRelease()

	if status == StatusCancelled || actualTokens <= 0 {
		return
	}
	// If the actual usage exceeds the estimate by more than 20%, charge the
	// difference now so the next acquisition on this credential is delayed
	// accordingly. Under-estimates otherwise never raise an error.
	if overage := actualTokens - p.estimated; overage > 0 && float64(overage) > 0.2*float64(p.estimated) {
		_ = p.cred.tokenLimiter.ReserveN(time.Now(), overage)
	}
}

// Quarantine permanently removes a credential from the selection pool for
// the remainder of the process. There is no automatic rotation back in.
func (p *Pool) Quarantine(id string) {
	p.mu.Lock()
	var found bool
	for _, c := range p.creds {
		if c.id == id {
			c.mu.Lock()
			c.quarantined = true
			c.mu.Unlock()
			found = true
			break
		}
	}
	p.mu.Unlock()
	if found {
		// Wake anyone blocked waiting for a credential: a credential just
		// dropped out of consideration, possibly leaving "all quarantined"
		// as the now-correct answer instead of "keep waiting".
		p.signalRelease()
	}
}

// Size returns the number of non-quarantined credentials, used by C4/C5 to
// decide whether a two-phase merge can run in parallel.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.creds {
		c.mu.Lock()
		if !c.quarantined {
			n++
		}
		c.mu.Unlock()
	}
	return n
}
