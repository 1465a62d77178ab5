package db

// SchemaSQL contains the database schema initialization SQL.
const SchemaSQL = `
    -- ==========================================================================
    -- ENTITY TABLE (extracted entities, one row per batch occurrence)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS entity SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS class ON entity TYPE string;
    DEFINE FIELD IF NOT EXISTS name ON entity TYPE string;
    DEFINE FIELD IF NOT EXISTS properties ON entity TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS embedding ON entity TYPE array<float>;
    DEFINE FIELD IF NOT EXISTS batch_id ON entity TYPE string;
    DEFINE FIELD IF NOT EXISTS created ON entity TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS entity_batch ON entity FIELDS batch_id;
    DEFINE INDEX IF NOT EXISTS entity_class_name ON entity FIELDS class, name;
    DEFINE INDEX IF NOT EXISTS entity_embedding ON entity FIELDS embedding HNSW DIMENSION 384 DIST COSINE TYPE F32;

    -- ==========================================================================
    -- RELATES TABLE (predicate edges between extracted entities)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS relates TYPE RELATION IN entity OUT entity SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS predicate ON relates TYPE string;
    DEFINE FIELD IF NOT EXISTS batch_id ON relates TYPE string;
    DEFINE FIELD IF NOT EXISTS created ON relates TYPE datetime DEFAULT time::now();
    -- Unique constraint: [in, out, predicate] prevents duplicate edges
    DEFINE FIELD IF NOT EXISTS unique_key ON relates VALUE <string>string::concat(<string>in, "|", <string>out, "|", predicate);
    DEFINE INDEX IF NOT EXISTS unique_relation ON relates FIELDS unique_key UNIQUE;

    -- ==========================================================================
    -- TICKET TABLE (single-use access credentials, record id = token)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS ticket SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS ontology_id ON ticket TYPE string;
    DEFINE FIELD IF NOT EXISTS api_key ON ticket TYPE string;
    DEFINE FIELD IF NOT EXISTS created_at ON ticket TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS expires_at ON ticket TYPE datetime;

    DEFINE INDEX IF NOT EXISTS ticket_expiry ON ticket FIELDS expires_at;

    -- ==========================================================================
    -- BATCH TABLE (resumable extraction jobs)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS batch SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS ontology_id ON batch TYPE string;
    DEFINE FIELD IF NOT EXISTS vocabulary_version ON batch TYPE string;
    DEFINE FIELD IF NOT EXISTS phase ON batch TYPE string;
    DEFINE FIELD IF NOT EXISTS items ON batch TYPE array<string>;
    DEFINE FIELD IF NOT EXISTS run_config ON batch TYPE object FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS state ON batch TYPE object FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS cause ON batch TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS can_resume ON batch TYPE bool DEFAULT true;
    DEFINE FIELD IF NOT EXISTS started_at ON batch TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS completed_at ON batch TYPE option<datetime>;

    DEFINE INDEX IF NOT EXISTS batch_phase ON batch FIELDS phase;

    -- ==========================================================================
    -- PROCESSED_ITEM TABLE (idempotency keys for resumable batches)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS processed_item SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS batch_id ON processed_item TYPE string;
    DEFINE FIELD IF NOT EXISTS key ON processed_item TYPE string;
    DEFINE FIELD IF NOT EXISTS index ON processed_item TYPE int;
    DEFINE FIELD IF NOT EXISTS created_at ON processed_item TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS processed_item_key ON processed_item FIELDS batch_id, key UNIQUE;
`
