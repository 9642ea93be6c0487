package databases

// This file documents the Postgres-backed database implementations and their
// expected extensions and schemas. It exists to keep SQL bootstrap centralized
// and easy to find. Production deployments should manage migrations with an
// external tool; our code performs best-effort CREATE IF NOT EXISTS for dev.

/*
Extensions
- vector: for pgvector (embeddings), backing the vector store's postgres mode
- pg_trgm: optional FTS helpers (not required for tsquery)

Full-text / vector search tables (used by FullTextSearch and VectorStore):
- documents(id TEXT PRIMARY KEY, text TEXT NOT NULL, metadata JSONB, ts tsvector GENERATED ... STORED)
  GIN index on ts
- embeddings(id TEXT PRIMARY KEY, vec vector[(dim)], metadata JSONB)
  ivfflat or hnsw index per configured metric

Relational schema (created by internal/promptstore and internal/audit):
- scenario(id, name)
- report_type(id, description, scenario_id REFERENCES scenario)
- building_type(id, name)
- prompt(id, text, run_part INT, is_json BOOL)
- prompt_building_report(prompt_id REFERENCES prompt, building_id REFERENCES building_type, report_type_id REFERENCES report_type)
- transcription(id, text, source_name TEXT UNIQUE, sequence_no, created_at)
- employee(id, name UNIQUE)
- client(id, name UNIQUE)
- place(id, name, building_type, UNIQUE(name, building_type))
- city(id, name UNIQUE)
- zone(id, name UNIQUE)
- audit(id, text, transcription_id REFERENCES transcription, employee_id REFERENCES employee,
  client_id REFERENCES client NULL, place_id REFERENCES place, date, city_id REFERENCES city NULL)
- user_road(audit_id REFERENCES audit, scenario_id, report_type_id, building_id)

Dimension lookup tables (employee, client, place, city) are get-or-create:
select by name, insert on miss; the insert is an upsert on the unique key
(ON CONFLICT ... DO UPDATE ... RETURNING id), which makes concurrent
inserts of the same name return one id.
*/
