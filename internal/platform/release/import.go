// Package release imports RF1 tab-separated release files into the
// terminology store. Identifier checksums are enforced at the write boundary
// and rows referencing missing concepts are skipped, never fatal. Import
// order matters: concepts, then descriptions, then relationships; closure and
// index rebuilds run afterwards, not here.
package release

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/clinterm/clinterm/internal/domain/concept"
	"github.com/clinterm/clinterm/internal/domain/identifier"
)

const (
	conceptFields      = 6 // CONCEPTID, CONCEPTSTATUS, FULLYSPECIFIEDNAME, CTV3ID, SNOMEDID, ISPRIMITIVE
	descriptionFields  = 7 // DESCRIPTIONID, DESCRIPTIONSTATUS, CONCEPTID, TERM, INITIALCAPITALSTATUS, DESCRIPTIONTYPE, LANGUAGECODE
	relationshipFields = 7 // RELATIONSHIPID, CONCEPTID1, RELATIONSHIPTYPE, CONCEPTID2, CHARACTERISTICTYPE, REFINABILITY, RELATIONSHIPGROUP
)

// Counts reports the outcome of one file's import.
type Counts struct {
	Read     int `json:"read"`
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// Importer writes release rows through the concept repositories.
type Importer struct {
	concepts      concept.ConceptRepository
	descriptions  concept.DescriptionRepository
	relationships concept.RelationshipRepository
	logger        zerolog.Logger
}

func NewImporter(concepts concept.ConceptRepository, descriptions concept.DescriptionRepository, relationships concept.RelationshipRepository, logger zerolog.Logger) *Importer {
	return &Importer{
		concepts:      concepts,
		descriptions:  descriptions,
		relationships: relationships,
		logger:        logger,
	}
}

// rows iterates the tab-separated lines of an RF1 file, skipping the header
// row and blank lines. Lines with the wrong column count are handed to the
// callback as nil so it can count the skip.
func rows(r io.Reader, fields int, fn func(cols []string) error) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	read := 0
	first := true
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" {
			continue
		}
		cols := strings.Split(line, "\t")
		if first {
			first = false
			if _, err := strconv.ParseInt(cols[0], 10, 64); err != nil {
				continue // header row
			}
		}
		read++
		if len(cols) != fields {
			cols = nil
		}
		if err := fn(cols); err != nil {
			return read, err
		}
	}
	return read, scanner.Err()
}

// ImportConcepts reads an RF1 concepts file. Rows whose id fails the
// checksum or does not decode to the concept partition are skipped.
func (i *Importer) ImportConcepts(ctx context.Context, r io.Reader) (Counts, error) {
	var counts Counts
	read, err := rows(r, conceptFields, func(cols []string) error {
		if cols == nil {
			counts.Skipped++
			return nil
		}
		id, idErr := strconv.ParseInt(cols[0], 10, 64)
		status, statusErr := strconv.Atoi(cols[1])
		if idErr != nil || statusErr != nil || identifier.ValidateAs(id, identifier.TypeConcept) != nil {
			counts.Skipped++
			i.logger.Warn().Str("concept_id", cols[0]).Msg("invalid concept row, skipping")
			return nil
		}
		c := &concept.Concept{
			ID:                 id,
			Status:             concept.Status(status),
			FullySpecifiedName: cols[2],
			CTV3ID:             cols[3],
			SnomedID:           cols[4],
			Primitive:          cols[5] == "1",
		}
		if err := i.concepts.Create(ctx, c); err != nil {
			return fmt.Errorf("write concept %d: %w", id, err)
		}
		counts.Imported++
		return nil
	})
	counts.Read = read
	return counts, err
}

// ImportDescriptions reads an RF1 descriptions file. Rows with a bad
// checksum or referencing a concept absent from the store are skipped.
func (i *Importer) ImportDescriptions(ctx context.Context, r io.Reader) (Counts, error) {
	var counts Counts
	read, err := rows(r, descriptionFields, func(cols []string) error {
		if cols == nil {
			counts.Skipped++
			return nil
		}
		id, idErr := strconv.ParseInt(cols[0], 10, 64)
		status, statusErr := strconv.Atoi(cols[1])
		conceptID, conceptErr := strconv.ParseInt(cols[2], 10, 64)
		dtype, typeErr := strconv.Atoi(cols[5])
		if idErr != nil || statusErr != nil || conceptErr != nil || typeErr != nil ||
			identifier.ValidateAs(id, identifier.TypeDescription) != nil {
			counts.Skipped++
			i.logger.Warn().Str("description_id", cols[0]).Msg("invalid description row, skipping")
			return nil
		}

		exists, err := i.concepts.Exists(ctx, conceptID)
		if err != nil {
			return err
		}
		if !exists {
			counts.Skipped++
			i.logger.Warn().
				Int64("description_id", id).
				Int64("concept_id", conceptID).
				Msg("description references missing concept, skipping")
			return nil
		}

		d := &concept.Description{
			ID:           id,
			ConceptID:    conceptID,
			Term:         cols[3],
			Type:         concept.DescriptionType(dtype),
			LanguageCode: cols[6],
			Status:       concept.Status(status),
		}
		if err := i.descriptions.Create(ctx, d); err != nil {
			return fmt.Errorf("write description %d: %w", id, err)
		}
		counts.Imported++
		return nil
	})
	counts.Read = read
	return counts, err
}

// ImportRelationships reads an RF1 relationships file. Rows with a bad
// checksum or a dangling source or target concept are skipped.
func (i *Importer) ImportRelationships(ctx context.Context, r io.Reader) (Counts, error) {
	var counts Counts
	read, err := rows(r, relationshipFields, func(cols []string) error {
		if cols == nil {
			counts.Skipped++
			return nil
		}
		id, idErr := strconv.ParseInt(cols[0], 10, 64)
		sourceID, sourceErr := strconv.ParseInt(cols[1], 10, 64)
		typeID, typeErr := strconv.ParseInt(cols[2], 10, 64)
		targetID, targetErr := strconv.ParseInt(cols[3], 10, 64)
		if idErr != nil || sourceErr != nil || typeErr != nil || targetErr != nil ||
			identifier.ValidateAs(id, identifier.TypeRelationship) != nil {
			counts.Skipped++
			i.logger.Warn().Str("relationship_id", cols[0]).Msg("invalid relationship row, skipping")
			return nil
		}

		for _, conceptID := range []int64{sourceID, targetID} {
			exists, err := i.concepts.Exists(ctx, conceptID)
			if err != nil {
				return err
			}
			if !exists {
				counts.Skipped++
				i.logger.Warn().
					Int64("relationship_id", id).
					Int64("concept_id", conceptID).
					Msg("relationship references missing concept, skipping")
				return nil
			}
		}

		characteristic, _ := strconv.Atoi(cols[4])
		refinability, _ := strconv.Atoi(cols[5])
		group, _ := strconv.Atoi(cols[6])
		rel := &concept.Relationship{
			ID:                 id,
			SourceID:           sourceID,
			TypeID:             typeID,
			TargetID:           targetID,
			CharacteristicType: characteristic,
			Refinability:       refinability,
			Group:              group,
		}
		if err := i.relationships.Create(ctx, rel); err != nil {
			return fmt.Errorf("write relationship %d: %w", id, err)
		}
		counts.Imported++
		return nil
	})
	counts.Read = read
	return counts, err
}

// ImportDir imports every recognisable release file under dir, concepts
// first, then descriptions, then relationships. File roles are inferred from
// the filename. Returns per-file counts keyed by filename.
func (i *Importer) ImportDir(ctx context.Context, dir string) (map[string]Counts, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read release dir: %w", err)
	}

	kind := func(name string) int {
		lower := strings.ToLower(name)
		switch {
		case strings.Contains(lower, "concept"):
			return 0
		case strings.Contains(lower, "description"):
			return 1
		case strings.Contains(lower, "relationship"):
			return 2
		}
		return -1
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && kind(entry.Name()) >= 0 {
			names = append(names, entry.Name())
		}
	}
	sort.Slice(names, func(a, b int) bool { return kind(names[a]) < kind(names[b]) })

	results := make(map[string]Counts, len(names))
	for _, name := range names {
		f, err := os.Open(filepath.Join(dir, name))
		if err != nil {
			return results, err
		}

		var counts Counts
		switch kind(name) {
		case 0:
			counts, err = i.ImportConcepts(ctx, f)
		case 1:
			counts, err = i.ImportDescriptions(ctx, f)
		case 2:
			counts, err = i.ImportRelationships(ctx, f)
		}
		f.Close()
		if err != nil {
			return results, fmt.Errorf("import %s: %w", name, err)
		}
		results[name] = counts

		i.logger.Info().
			Str("file", name).
			Int("read", counts.Read).
			Int("imported", counts.Imported).
			Int("skipped", counts.Skipped).
			Msg("release file imported")
	}
	return results, nil
}
