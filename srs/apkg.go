package srs

import (
	"archive/zip"
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/curatorlabs/curator/models"
)

// The .apkg container is a zip holding a "collection.anki2" SQLite database
// (schema version 11) and a "media" manifest. Only the two-field basic note
// type is written; scheduling data beyond state is not preserved.

const (
	apkgCollectionName = "collection.anki2"
	apkgMediaName      = "media"
	apkgSchemaVersion  = 11
	apkgModelID        = 1700000000001
)

const apkgSchema = `
CREATE TABLE col (
	id integer primary key, crt integer not null, mod integer not null,
	scm integer not null, ver integer not null, dty integer not null,
	usn integer not null, ls integer not null, conf text not null,
	models text not null, decks text not null, dconf text not null,
	tags text not null
);
CREATE TABLE notes (
	id integer primary key, guid text not null, mid integer not null,
	mod integer not null, usn integer not null, tags text not null,
	flds text not null, sfld text not null, csum integer not null,
	flags integer not null, data text not null
);
CREATE TABLE cards (
	id integer primary key, nid integer not null, did integer not null,
	ord integer not null, mod integer not null, usn integer not null,
	type integer not null, queue integer not null, due integer not null,
	ivl integer not null, factor integer not null, reps integer not null,
	lapses integer not null, left integer not null, odue integer not null,
	odid integer not null, flags integer not null, data text not null
);
CREATE TABLE revlog (
	id integer primary key, cid integer not null, usn integer not null,
	ease integer not null, ivl integer not null, lastIvl integer not null,
	factor integer not null, time integer not null, type integer not null
);
CREATE TABLE graves (usn integer not null, oid integer not null, type integer not null);
CREATE INDEX ix_notes_usn on notes (usn);
CREATE INDEX ix_cards_usn on cards (usn);
CREATE INDEX ix_cards_nid on cards (nid);
CREATE INDEX ix_cards_sched on cards (did, queue, due);
CREATE INDEX ix_notes_csum on notes (csum);
`

var flagToAnki = map[string]int{
	FlagNone:      0,
	FlagRed:       1,
	FlagOrange:    2,
	FlagGreen:     3,
	FlagBlue:      4,
	FlagPink:      5,
	FlagTurquoise: 6,
	FlagPurple:    7,
}

var ankiToFlag = map[int]string{
	0: FlagNone,
	1: FlagRed,
	2: FlagOrange,
	3: FlagGreen,
	4: FlagBlue,
	5: FlagPink,
	6: FlagTurquoise,
	7: FlagPurple,
}

func stateToAnki(state string) (cardType, queue int) {
	switch state {
	case StateLearning:
		return 1, 1
	case StateReview:
		return 2, 2
	case StateBuried:
		return 2, -2
	case StateSuspended:
		return 2, -1
	default:
		return 0, 0
	}
}

func ankiToState(cardType, queue int) string {
	switch {
	case queue == -1:
		return StateSuspended
	case queue == -2 || queue == -3:
		return StateBuried
	case cardType == 1 || cardType == 3:
		return StateLearning
	case cardType == 2:
		return StateReview
	default:
		return StateNew
	}
}

// ExportCollection writes the user's full collection as an .apkg archive.
func ExportCollection(ctx context.Context, store *Store, userID string, w io.Writer) error {
	decks, err := store.ListDecks(ctx, userID)
	if err != nil {
		return err
	}
	return exportDecks(ctx, store, userID, decks, w)
}

// ExportDeck writes a single deck, looked up by name, as an .apkg archive.
func ExportDeck(ctx context.Context, store *Store, userID, deckName string, w io.Writer) error {
	deck, err := store.GetDeckByName(ctx, userID, deckName)
	if err != nil {
		return err
	}
	return exportDecks(ctx, store, userID, []models.Deck{*deck}, w)
}

func exportDecks(ctx context.Context, store *Store, userID string, decks []models.Deck, w io.Writer) error {
	tmpDir, err := os.MkdirTemp("", "apkg-export-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	dbPath := filepath.Join(tmpDir, apkgCollectionName)
	if err := writeCollectionDB(ctx, store, userID, decks, dbPath); err != nil {
		return err
	}

	zw := zip.NewWriter(w)

	dbFile, err := zw.Create(apkgCollectionName)
	if err != nil {
		return fmt.Errorf("failed to create zip entry: %w", err)
	}
	src, err := os.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open collection db: %w", err)
	}
	_, err = io.Copy(dbFile, src)
	src.Close()
	if err != nil {
		return fmt.Errorf("failed to write collection db: %w", err)
	}

	mediaFile, err := zw.Create(apkgMediaName)
	if err != nil {
		return fmt.Errorf("failed to create media entry: %w", err)
	}
	if _, err := mediaFile.Write([]byte("{}")); err != nil {
		return fmt.Errorf("failed to write media manifest: %w", err)
	}

	return zw.Close()
}

func writeCollectionDB(ctx context.Context, store *Store, userID string, decks []models.Deck, path string) error {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to open collection db: %w", err)
	}
	defer func() {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			sqlDB.Close()
		}
	}()

	for _, stmt := range strings.Split(apkgSchema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if err := db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	now := time.Now()
	nowSec := now.Unix()
	nowMilli := now.UnixMilli()

	deckIDs := make(map[string]int64, len(decks))
	deckJSON := map[string]any{
		"1": ankiDeckJSON(1, "Default", nowSec),
	}
	for i, deck := range decks {
		did := nowMilli + int64(i) + 1
		deckIDs[deck.ID] = did
		deckJSON[strconv.FormatInt(did, 10)] = ankiDeckJSON(did, deck.Name, nowSec)
	}

	colRow := map[string]any{
		"conf":   ankiConfJSON(),
		"models": ankiModelsJSON(nowSec),
		"decks":  deckJSON,
		"dconf":  map[string]any{"1": map[string]any{"id": 1, "name": "Default"}},
	}
	encoded := make(map[string]string, len(colRow))
	for key, value := range colRow {
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", key, err)
		}
		encoded[key] = string(raw)
	}

	err = db.WithContext(ctx).Exec(
		`INSERT INTO col (id, crt, mod, scm, ver, dty, usn, ls, conf, models, decks, dconf, tags)
		 VALUES (1, ?, ?, ?, ?, 0, 0, 0, ?, ?, ?, ?, '{}')`,
		nowSec, nowMilli, nowMilli, apkgSchemaVersion,
		encoded["conf"], encoded["models"], encoded["decks"], encoded["dconf"],
	).Error
	if err != nil {
		return fmt.Errorf("failed to write col row: %w", err)
	}

	seq := nowMilli
	for _, deck := range decks {
		cards, err := store.CardsInDeck(ctx, userID, deck.ID)
		if err != nil {
			return err
		}
		for i := range cards {
			card := &cards[i]
			seq += 2
			noteID, cardID := seq, seq+1

			fields := card.Question + "\x1f" + card.Answer
			err = db.WithContext(ctx).Exec(
				`INSERT INTO notes (id, guid, mid, mod, usn, tags, flds, sfld, csum, flags, data)
				 VALUES (?, ?, ?, ?, 0, '', ?, ?, ?, 0, '')`,
				noteID, noteGUID(card.ID), apkgModelID, nowSec, fields, card.Question, fieldChecksum(card.Question),
			).Error
			if err != nil {
				return fmt.Errorf("failed to write note: %w", err)
			}

			cardType, queue := stateToAnki(card.State)
			err = db.WithContext(ctx).Exec(
				`INSERT INTO cards (id, nid, did, ord, mod, usn, type, queue, due, ivl, factor, reps, lapses, left, odue, odid, flags, data)
				 VALUES (?, ?, ?, 0, ?, 0, ?, ?, 0, 0, 0, 0, 0, 0, 0, 0, ?, '')`,
				cardID, noteID, deckIDs[deck.ID], nowSec, cardType, queue, flagToAnki[card.Flag],
			).Error
			if err != nil {
				return fmt.Errorf("failed to write card: %w", err)
			}
		}
	}

	return nil
}

func ankiDeckJSON(id int64, name string, mod int64) map[string]any {
	return map[string]any{
		"id":        id,
		"name":      name,
		"mod":       mod,
		"usn":       0,
		"desc":      "",
		"dyn":       0,
		"conf":      1,
		"collapsed": false,
		"newToday":  []int{0, 0},
		"revToday":  []int{0, 0},
		"lrnToday":  []int{0, 0},
		"timeToday": []int{0, 0},
	}
}

func ankiConfJSON() map[string]any {
	return map[string]any{
		"nextPos":       1,
		"estTimes":      true,
		"activeDecks":   []int{1},
		"sortType":      "noteFld",
		"timeLim":       0,
		"sortBackwards": false,
		"addToCur":      true,
		"curDeck":       1,
		"newSpread":     0,
		"dueCounts":     true,
		"curModel":      strconv.FormatInt(apkgModelID, 10),
		"collapseTime":  1200,
	}
}

func ankiModelsJSON(mod int64) map[string]any {
	return map[string]any{
		strconv.FormatInt(apkgModelID, 10): map[string]any{
			"id":    apkgModelID,
			"name":  "Basic",
			"type":  0,
			"mod":   mod,
			"usn":   0,
			"did":   1,
			"sortf": 0,
			"flds": []map[string]any{
				{"name": "Front", "ord": 0, "sticky": false, "rtl": false, "font": "Arial", "size": 20},
				{"name": "Back", "ord": 1, "sticky": false, "rtl": false, "font": "Arial", "size": 20},
			},
			"tmpls": []map[string]any{
				{
					"name": "Card 1", "ord": 0,
					"qfmt": "{{Front}}", "afmt": "{{FrontSide}}\n\n<hr id=answer>\n\n{{Back}}",
					"bqfmt": "", "bafmt": "", "did": nil,
				},
			},
			"css":  ".card { font-family: arial; font-size: 20px; text-align: center; color: black; background-color: white; }",
			"tags": []string{},
			"vers": []string{},
			"req":  []any{[]any{0, "all", []int{0}}},
		},
	}
}

func noteGUID(cardID string) string {
	return strings.ReplaceAll(cardID, "-", "")[:10]
}

// fieldChecksum is the integer value of the first 8 hex digits of the SHA1 of
// the sort field, matching Anki's dupe check column.
func fieldChecksum(field string) int64 {
	sum := sha1.Sum([]byte(field))
	value, _ := strconv.ParseInt(fmt.Sprintf("%x", sum[:4]), 16, 64)
	return value
}

// ImportCollection reads an .apkg archive and merges its decks and cards into
// the user's collection. Decks are matched by name; missing ones are created.
// It returns the number of decks touched and cards imported.
func ImportCollection(ctx context.Context, store *Store, userID string, r io.ReaderAt, size int64) (int, int, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open package: %w", err)
	}

	var collection *zip.File
	for _, f := range zr.File {
		if f.Name == apkgCollectionName {
			collection = f
			break
		}
	}
	if collection == nil {
		return 0, 0, fmt.Errorf("package has no %s", apkgCollectionName)
	}

	tmpDir, err := os.MkdirTemp("", "apkg-import-*")
	if err != nil {
		return 0, 0, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	dbPath := filepath.Join(tmpDir, apkgCollectionName)
	if err := extractZipFile(collection, dbPath); err != nil {
		return 0, 0, err
	}

	return readCollectionDB(ctx, store, userID, dbPath)
}

func extractZipFile(f *zip.File, dest string) error {
	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open zip entry: %w", err)
	}
	defer src.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		return fmt.Errorf("failed to extract collection db: %w", err)
	}
	return nil
}

func readCollectionDB(ctx context.Context, store *Store, userID string, path string) (int, int, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open collection db: %w", err)
	}
	defer func() {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			sqlDB.Close()
		}
	}()

	var decksJSON string
	if err := db.WithContext(ctx).Raw("SELECT decks FROM col LIMIT 1").Scan(&decksJSON).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to read col row: %w", err)
	}

	var rawDecks map[string]struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal([]byte(decksJSON), &rawDecks); err != nil {
		return 0, 0, fmt.Errorf("failed to decode deck list: %w", err)
	}
	deckNames := make(map[int64]string, len(rawDecks))
	for id, deck := range rawDecks {
		did, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			continue
		}
		deckNames[did] = deck.Name
	}

	rows, err := db.WithContext(ctx).Raw(
		`SELECT cards.did, cards.type, cards.queue, cards.flags, notes.flds
		 FROM cards JOIN notes ON notes.id = cards.nid
		 ORDER BY cards.id`,
	).Rows()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read cards: %w", err)
	}
	defer rows.Close()

	targetDecks := make(map[int64]string)
	cardsImported := 0
	for rows.Next() {
		var did int64
		var cardType, queue, flags int
		var fields string
		if err := rows.Scan(&did, &cardType, &queue, &flags, &fields); err != nil {
			return 0, 0, fmt.Errorf("failed to scan card row: %w", err)
		}

		deckID, ok := targetDecks[did]
		if !ok {
			name := deckNames[did]
			if name == "" {
				name = fmt.Sprintf("Imported deck %d", did)
			}
			deckID, err = resolveImportDeck(ctx, store, userID, name)
			if err != nil {
				return 0, 0, err
			}
			targetDecks[did] = deckID
		}

		question, answer := splitNoteFields(fields)
		_, err = store.AddCard(ctx, userID, deckID, question, answer,
			ankiToState(cardType, queue), ankiToFlag[flags&0x7])
		if err != nil {
			return 0, 0, err
		}
		cardsImported++
	}
	if err := rows.Err(); err != nil {
		return 0, 0, fmt.Errorf("failed to iterate cards: %w", err)
	}

	return len(targetDecks), cardsImported, nil
}

func resolveImportDeck(ctx context.Context, store *Store, userID, name string) (string, error) {
	deck, err := store.AddDeck(ctx, userID, name)
	if err == nil {
		return deck.ID, nil
	}
	existing, lookupErr := store.GetDeckByName(ctx, userID, name)
	if lookupErr != nil {
		return "", err
	}
	return existing.ID, nil
}

// splitNoteFields separates a note's field blob on the 0x1f separator. The
// first field is the question, the second the answer.
func splitNoteFields(fields string) (string, string) {
	parts := strings.SplitN(fields, "\x1f", 3)
	question := parts[0]
	answer := ""
	if len(parts) > 1 {
		answer = parts[1]
	}
	return question, answer
}
