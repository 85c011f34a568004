package sqlite

// Schema contains the SQL statements to create the relational schema:
// one table per concrete adapter type, the generic indexed_entities table,
// and the entity_relationships edge table with its uniqueness constraint.
const Schema = `
-- Emails: one row per ingested message
CREATE TABLE IF NOT EXISTS emails (
    id TEXT PRIMARY KEY,
    message_id TEXT NOT NULL,
    thread_id TEXT,
    subject TEXT,
    sender TEXT,
    sender_email TEXT,
    recipients TEXT,          -- JSON array
    date TEXT,                -- RFC3339
    snippet TEXT,
    body TEXT,
    labels TEXT,              -- JSON array
    is_unread INTEGER NOT NULL DEFAULT 0,
    has_attachments INTEGER NOT NULL DEFAULT 0,

    -- Analyzed partition
    summary TEXT,
    category TEXT,
    priority TEXT,
    needs_followup INTEGER NOT NULL DEFAULT 0,
    sentiment TEXT,

    metadata TEXT,            -- JSON object
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_emails_sender_email ON emails(sender_email);
CREATE INDEX IF NOT EXISTS idx_emails_date ON emails(date);
CREATE INDEX IF NOT EXISTS idx_emails_is_unread ON emails(is_unread);

-- Contacts: natural key is the email address
CREATE TABLE IF NOT EXISTS contacts (
    id TEXT PRIMARY KEY,
    name TEXT,
    email TEXT NOT NULL UNIQUE,
    phone TEXT,
    company TEXT,
    role TEXT,
    notes TEXT,
    tags TEXT,                -- JSON array

    -- Analyzed partition
    summary TEXT,
    category TEXT,
    interaction_count INTEGER NOT NULL DEFAULT 0,
    last_interaction TEXT,    -- RFC3339

    metadata TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_contacts_company ON contacts(company);

-- Follow-ups produced by the rule-based email classifiers
CREATE TABLE IF NOT EXISTS follow_ups (
    id TEXT PRIMARY KEY,
    email_id TEXT,
    contact_id TEXT,
    subject TEXT,
    reason TEXT,
    due_date TEXT,            -- RFC3339
    status TEXT NOT NULL DEFAULT 'pending',
    priority TEXT NOT NULL DEFAULT 'normal',
    completed_at TEXT,        -- RFC3339

    -- Analyzed partition
    summary TEXT,
    confidence REAL NOT NULL DEFAULT 0,

    metadata TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_follow_ups_status ON follow_ups(status);
CREATE INDEX IF NOT EXISTS idx_follow_ups_due_date ON follow_ups(due_date);

-- Meetings: transcripts and calendar-derived records
CREATE TABLE IF NOT EXISTS meetings (
    id TEXT PRIMARY KEY,
    event_id TEXT,
    title TEXT,
    organizer TEXT,
    participants TEXT,        -- JSON array
    start_time TEXT,          -- RFC3339
    end_time TEXT,            -- RFC3339
    location TEXT,
    transcript TEXT,

    -- Analyzed partition
    summary TEXT,
    action_items TEXT,        -- JSON array
    decisions TEXT,           -- JSON array
    category TEXT,

    metadata TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_meetings_start_time ON meetings(start_time);

-- Generic entities without a dedicated table (memory, event, fact, ...)
CREATE TABLE IF NOT EXISTS indexed_entities (
    id TEXT PRIMARY KEY,
    entity_type TEXT NOT NULL,
    source TEXT,
    structured TEXT,          -- JSON object
    analyzed TEXT,            -- JSON object
    metadata TEXT,            -- JSON object
    deleted_at TIMESTAMP,     -- soft delete tombstone
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_indexed_entities_type ON indexed_entities(entity_type);

-- Directed, typed edges between entity IDs of any type
CREATE TABLE IF NOT EXISTS entity_relationships (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    from_id TEXT NOT NULL,
    from_type TEXT NOT NULL,
    to_id TEXT NOT NULL,
    to_type TEXT NOT NULL,
    relationship_type TEXT NOT NULL,
    metadata TEXT,            -- JSON object
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(from_id, to_id, relationship_type)
);

CREATE INDEX IF NOT EXISTS idx_relationships_from ON entity_relationships(from_id);
CREATE INDEX IF NOT EXISTS idx_relationships_to ON entity_relationships(to_id);
`
