package database

import "errors"

var (
	ErrInvalidFeedID     = errors.New("invalid feed id")
	ErrInvalidFeedItemID = errors.New("invalid feed item id")
)
