package job

import (
	"errors"
	"strings"
)

var (
	ErrEmptyContent  = errors.New("content is empty")
	ErrBannedContent = errors.New("content contains banned terms")
	ErrItemNotFound  = errors.New("batch item not found")
	ErrBusy          = errors.New("a request is already running")
	ErrRunInProgress = errors.New("a batch run is already in progress")
)

// BannedContentError lists the banned terms found in the content
type BannedContentError struct {
	Terms []string
}

func (e *BannedContentError) Error() string {
	return ErrBannedContent.Error() + ": " + strings.Join(e.Terms, ", ")
}

// Is makes errors.Is(err, ErrBannedContent) match
func (e *BannedContentError) Is(target error) bool {
	return target == ErrBannedContent
}
