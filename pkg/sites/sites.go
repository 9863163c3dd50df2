// Package sites resolves the machine's hostname to a site identifier
// using the shops.csv directory shipped with the agent.
package sites

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"
)

// Unknown is returned when the hostname matches no directory entry.
const Unknown = "UNKNOWN"

type entry struct {
	id   string
	name string
}

// Directory is the in-memory shops.csv lookup table.
type Directory struct {
	entries []entry
}

// Load reads a shops.csv file with an `id,name` header row.
func Load(path string) (*Directory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open site directory %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("failed to read header from %s: %w", path, err)
	}

	dir := &Directory{}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading record from %s: %w", path, err)
		}
		if len(record) < 2 {
			continue
		}
		id := strings.TrimSpace(record[0])
		name := strings.TrimSpace(record[1])
		if id == "" || name == "" {
			continue
		}
		dir.entries = append(dir.entries, entry{id: id, name: name})
	}

	if len(dir.entries) == 0 {
		return nil, fmt.Errorf("site directory %s contains no entries", path)
	}

	return dir, nil
}

// Resolve maps a hostname to a site id. Matching ignores case, digits and
// punctuation, so "BakewellTill2" resolves against a "Bakewell" entry.
// If the hostname carries exactly one decimal digit, that digit is appended
// as "_<digit>" to distinguish registers at multi-till sites.
func (d *Directory) Resolve(hostname string) string {
	normalized := normalize(hostname)

	id := Unknown
	for _, e := range d.entries {
		if strings.Contains(normalized, normalize(e.name)) {
			id = e.id
			break
		}
	}

	if reg, ok := singleDigit(hostname); ok {
		id = id + "_" + reg
	}

	return id
}

// normalize lower-cases and strips everything that is not a letter.
func normalize(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// singleDigit reports the hostname's register digit, if it has exactly one.
func singleDigit(s string) (string, bool) {
	digit := ""
	for _, r := range s {
		if r >= '0' && r <= '9' {
			if digit != "" {
				return "", false
			}
			digit = string(r)
		}
	}
	return digit, digit != ""
}
