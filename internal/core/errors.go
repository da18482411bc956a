package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrInvalidArgument = errors.New("invalid argument")
)

// GraphIntegrityError reports every structural problem found in a sentiment's
// curated data: its journey graph, its tags or its intentions.
type GraphIntegrityError struct {
	SentimentID int64
	Problems    []string
}

func (e *GraphIntegrityError) Error() string {
	return fmt.Sprintf("catalog data of sentiment %d is malformed: %s", e.SentimentID, strings.Join(e.Problems, "; "))
}
