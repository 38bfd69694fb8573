package storage

// Instants are stored as unix milliseconds so range queries compare numbers,
// not formatted strings. Calendar dates are stored as YYYY-MM-DD text.
const schema = `
-- The 'users' table carries the daily goal and the streak bookkeeping.
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL DEFAULT '',
    daily_goal INTEGER NOT NULL DEFAULT 20,
    current_streak INTEGER NOT NULL DEFAULT 0,
    max_streak INTEGER NOT NULL DEFAULT 0,
    last_streak_update TEXT NOT NULL DEFAULT ''
);

-- The 'modules' table groups cards into decks, optionally synced from a
-- local directory or a git repository.
CREATE TABLE IF NOT EXISTS modules (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL,
    title TEXT NOT NULL,
    path TEXT NOT NULL DEFAULT '',
    kind TEXT NOT NULL DEFAULT 'local',
    last_scanned INTEGER,

    FOREIGN KEY(user_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS cards (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    module_id INTEGER NOT NULL,
    hash TEXT NOT NULL,
    front TEXT NOT NULL,
    back TEXT NOT NULL DEFAULT '',
    context TEXT NOT NULL DEFAULT '',

    UNIQUE(module_id, hash),
    FOREIGN KEY(module_id) REFERENCES modules(id)
);

CREATE TABLE IF NOT EXISTS card_examples (
    card_id INTEGER NOT NULL,
    position INTEGER NOT NULL,
    text TEXT NOT NULL,

    PRIMARY KEY(card_id, position),
    FOREIGN KEY(card_id) REFERENCES cards(id)
);

-- One schedule per card, created in the same transaction as the card.
CREATE TABLE IF NOT EXISTS schedules (
    card_id INTEGER PRIMARY KEY,
    state INTEGER NOT NULL DEFAULT 0, -- 0: New, 1: Learning, 2: Review, 3: Mastered
    stability REAL NOT NULL DEFAULT 0,
    difficulty REAL NOT NULL DEFAULT 0,
    review_count INTEGER NOT NULL DEFAULT 0,
    lapse_count INTEGER NOT NULL DEFAULT 0,
    due_at INTEGER NOT NULL,
    last_reviewed_at INTEGER,
    learning_step INTEGER NOT NULL DEFAULT 0,
    consecutive_good_count INTEGER NOT NULL DEFAULT 0,
    last_good_at INTEGER,
    version INTEGER NOT NULL DEFAULT 0,

    FOREIGN KEY(card_id) REFERENCES cards(id)
);

-- Append-only grading log.
CREATE TABLE IF NOT EXISTS review_events (
    id TEXT PRIMARY KEY,
    card_id INTEGER NOT NULL,
    user_id INTEGER NOT NULL,
    grade INTEGER NOT NULL,
    state_before INTEGER NOT NULL,
    graded_at INTEGER NOT NULL,
    counts_toward_goal INTEGER NOT NULL DEFAULT 0,

    FOREIGN KEY(card_id) REFERENCES cards(id),
    FOREIGN KEY(user_id) REFERENCES users(id)
);

CREATE INDEX IF NOT EXISTS idx_review_events_card_user_time ON review_events(card_id, user_id, graded_at);
CREATE INDEX IF NOT EXISTS idx_review_events_user_time ON review_events(user_id, graded_at);
`
