// Package testutil builds small database fixtures for package tests.
package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

// Genre rows in the fixture, in GenreId order.
var Genres = []string{"Rock", "Jazz", "Metal", "Alternative & Punk"}

// Artist rows in the fixture, in ArtistId order.
var Artists = []string{"AC/DC", "Alice In Chains", "Miles Davis", "Metallica", "Motörhead", "Mötley Crüe", "Antônio Carlos Jobim"}

const chinookSchema = `
CREATE TABLE Artist (
	ArtistId INTEGER PRIMARY KEY,
	Name NVARCHAR(120)
);
CREATE TABLE Album (
	AlbumId INTEGER PRIMARY KEY,
	Title NVARCHAR(160) NOT NULL,
	ArtistId INTEGER NOT NULL REFERENCES Artist(ArtistId)
);
CREATE TABLE Genre (
	GenreId INTEGER PRIMARY KEY,
	Name NVARCHAR(120)
);
CREATE TABLE Track (
	TrackId INTEGER PRIMARY KEY,
	Name NVARCHAR(200) NOT NULL,
	AlbumId INTEGER REFERENCES Album(AlbumId),
	GenreId INTEGER REFERENCES Genre(GenreId),
	Milliseconds INTEGER NOT NULL,
	UnitPrice NUMERIC(10,2) NOT NULL
);
`

var chinookRows = []string{
	`INSERT INTO Artist VALUES (1, 'AC/DC'), (2, 'Alice In Chains'), (3, 'Miles Davis'), (4, 'Metallica'),
		(5, 'Motörhead'), (6, 'Mötley Crüe'), (7, 'Antônio Carlos Jobim')`,
	`INSERT INTO Genre VALUES (1, 'Rock'), (2, 'Jazz'), (3, 'Metal'), (4, 'Alternative & Punk')`,
	`INSERT INTO Album VALUES
		(1, 'For Those About To Rock We Salute You', 1),
		(2, 'Let There Be Rock', 1),
		(3, 'Facelift', 2),
		(4, 'Kind of Blue', 3),
		(5, 'Master Of Puppets', 4),
		(6, '1999', 3)`,
	`INSERT INTO Track VALUES
		(1, 'For Those About To Rock', 1, 1, 343719, 0.99),
		(2, 'Put The Finger On You', 1, 1, 205662, 0.99),
		(3, 'Go Down', 2, 1, 331180, 0.99),
		(4, 'We Die Young', 3, 4, 152084, 0.99),
		(5, 'Man In The Box', 3, 4, 286641, 0.99),
		(6, 'So What', 4, 2, 564000, 0.99),
		(7, 'Battery', 5, 3, 312000, 0.99),
		(8, 'Master Of Puppets', 5, 3, 515000, 0.99),
		(9, '   ', 5, 3, 1000, 0.99),
		(10, '42', 6, 2, 1000, 0.99)`,
}

// ChinookDB writes a small music-store SQLite database into a temp dir and
// returns its path. "Alice In Chains" has exactly one album.
func ChinookDB(t testing.TB) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "chinook.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(chinookSchema)
	require.NoError(t, err)
	for _, stmt := range chinookRows {
		_, err = db.Exec(stmt)
		require.NoError(t, err)
	}
	return path
}
