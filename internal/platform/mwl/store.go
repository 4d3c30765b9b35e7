package mwl

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/suyashkumar/dicom"
)

// Store writes worklist datasets into the directory a worklist SCP serves
// files from. One file per active entry, named <accession>.wl.
type Store struct {
	dir    string
	logger zerolog.Logger
}

func NewStore(dir string, logger zerolog.Logger) *Store {
	return &Store{
		dir:    dir,
		logger: logger.With().Str("component", "mwl_store").Logger(),
	}
}

// Path returns the file path an accession's worklist entry lives at.
func (s *Store) Path(accessionNumber string) string {
	return filepath.Join(s.dir, accessionNumber+".wl")
}

// Write persists a dataset as <accession>.wl, creating the worklist
// directory if needed. An existing file for the same accession is
// overwritten.
func (s *Store) Write(ds dicom.Dataset, accessionNumber string) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("mwl: create worklist dir: %w", err)
	}

	path := s.Path(accessionNumber)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("mwl: create %s: %w", path, err)
	}
	defer f.Close()

	if err := dicom.Write(f, ds, dicom.SkipVRVerification()); err != nil {
		return "", fmt.Errorf("mwl: write %s: %w", path, err)
	}

	s.logger.Info().Str("accession_number", accessionNumber).Str("path", path).Msg("worklist file written")
	return path, nil
}

// Delete removes an accession's worklist file. A missing file is not an
// error; the entry may already have been picked up and purged.
func (s *Store) Delete(accessionNumber string) bool {
	path := s.Path(accessionNumber)
	if err := os.Remove(path); err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str("path", path).Msg("failed to remove worklist file")
		}
		return false
	}
	s.logger.Info().Str("accession_number", accessionNumber).Msg("worklist file removed")
	return true
}
