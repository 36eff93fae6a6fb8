package db

import (
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// rewritePlaceholders
// ---------------------------------------------------------------------------

func TestRewritePlaceholders_Empty(t *testing.T) {
	if got := rewritePlaceholders(""); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestRewritePlaceholders_NoPlaceholders(t *testing.T) {
	in := "SELECT 1"
	if got := rewritePlaceholders(in); got != in {
		t.Errorf("got %q, want %q", got, in)
	}
}

func TestRewritePlaceholders_Single(t *testing.T) {
	got := rewritePlaceholders("SELECT * FROM videos WHERE video_id = ?")
	want := "SELECT * FROM videos WHERE video_id = $1"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRewritePlaceholders_Multiple(t *testing.T) {
	got := rewritePlaceholders("INSERT INTO video_sources (video_id, position, url) VALUES (?, ?, ?)")
	want := "INSERT INTO video_sources (video_id, position, url) VALUES ($1, $2, $3)"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRewritePlaceholders_QuestionInStringLiteral(t *testing.T) {
	// ? inside a quoted string must not be rewritten.
	got := rewritePlaceholders("SELECT '?' AS q FROM videos WHERE video_id = ?")
	want := "SELECT '?' AS q FROM videos WHERE video_id = $1"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRewritePlaceholders_EscapedQuote(t *testing.T) {
	// '' inside a string is an escaped single-quote; the ? after closing ' is a placeholder.
	got := rewritePlaceholders("SELECT 'it''s' WHERE x = ?")
	want := "SELECT 'it''s' WHERE x = $1"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRewritePlaceholders_MultipleStringsAndPlaceholders(t *testing.T) {
	got := rewritePlaceholders("SELECT 'a?b' WHERE c = ? AND d = ?")
	want := "SELECT 'a?b' WHERE c = $1 AND d = $2"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

// ---------------------------------------------------------------------------
// Dialect helpers -- CompatDB with nil DB is safe; these methods only inspect
// d.Dialect and build SQL strings.
// ---------------------------------------------------------------------------

func sqliteDB() *CompatDB { return &CompatDB{Dialect: DialectSQLite} }
func pgDB() *CompatDB     { return &CompatDB{Dialect: DialectPostgres} }

func TestIsPostgres(t *testing.T) {
	if sqliteDB().IsPostgres() {
		t.Error("SQLite CompatDB.IsPostgres() should be false")
	}
	if !pgDB().IsPostgres() {
		t.Error("Postgres CompatDB.IsPostgres() should be true")
	}
}

func TestBeginTxSQL(t *testing.T) {
	if got := sqliteDB().BeginTxSQL(); got != "BEGIN IMMEDIATE" {
		t.Errorf("SQLite = %q, want BEGIN IMMEDIATE", got)
	}
	if got := pgDB().BeginTxSQL(); got != "BEGIN" {
		t.Errorf("Postgres = %q, want BEGIN", got)
	}
}

func TestNowUTC(t *testing.T) {
	if got := sqliteDB().NowUTC(); !strings.Contains(got, "strftime") {
		t.Errorf("SQLite NowUTC = %q: expected strftime", got)
	}
	if got := pgDB().NowUTC(); !strings.Contains(got, "now()") {
		t.Errorf("Postgres NowUTC = %q: expected now()", got)
	}
}

func TestRandomFloat(t *testing.T) {
	if got := sqliteDB().RandomFloat(); !strings.Contains(got, "RANDOM") {
		t.Errorf("SQLite RandomFloat = %q", got)
	}
	if got := pgDB().RandomFloat(); !strings.Contains(got, "random") {
		t.Errorf("Postgres RandomFloat = %q", got)
	}
}

func TestDatetimeModifier_StripsMinus(t *testing.T) {
	mod := "-30 days"
	sq := sqliteDB().DatetimeModifier(mod)
	if !strings.Contains(sq, "datetime") || !strings.Contains(sq, mod) {
		t.Errorf("SQLite DatetimeModifier = %q", sq)
	}

	pg := pgDB().DatetimeModifier(mod)
	if !strings.Contains(pg, "interval") {
		t.Errorf("Postgres DatetimeModifier = %q: expected interval", pg)
	}
	// Leading minus must be stripped for Postgres interval syntax.
	if strings.Contains(pg, "-30") {
		t.Errorf("Postgres DatetimeModifier = %q: minus should be stripped", pg)
	}
	if !strings.Contains(pg, "30 days") {
		t.Errorf("Postgres DatetimeModifier = %q: expected '30 days'", pg)
	}
}

func TestInInt64(t *testing.T) {
	ph, args := InInt64([]int64{7, 9, 11})
	if ph != "?,?,?" {
		t.Errorf("placeholders = %q, want ?,?,?", ph)
	}
	if len(args) != 3 || args[0].(int64) != 7 || args[2].(int64) != 11 {
		t.Errorf("args = %v", args)
	}
}
