package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// loadSSN reads a sender sequence number stored by storeSSN. A missing file
// yields 0.
func loadSSN(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	ssn, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid sequence number in %s: %w", path, err)
	}
	return ssn, nil
}

// storeSSN replaces the stored sequence number with ssn.
func storeSSN(path string, ssn uint64) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(strconv.FormatUint(ssn, 10) + "\n"); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// reserveSequenceNumber returns the sender sequence number for one request.
// With a sequence number file the following number is stored before
// anything is sent, so a later run never seals under the same nonce.
func reserveSequenceNumber(opts Options) (uint64, error) {
	if opts.SSNFile == "" {
		return opts.SSN, nil
	}

	ssn := opts.SSN
	if !opts.SSNSet {
		stored, err := loadSSN(opts.SSNFile)
		if err != nil {
			return 0, err
		}
		ssn = stored
	}
	if err := storeSSN(opts.SSNFile, ssn+1); err != nil {
		return 0, fmt.Errorf("store sequence number: %w", err)
	}
	return ssn, nil
}
