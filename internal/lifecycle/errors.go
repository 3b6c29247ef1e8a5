package lifecycle

import (
	"errors"

	"github.com/MrSnakeDoc/linkpocket/internal/order"
)

// Input validation.
var (
	ErrEmptyURL        = errors.New("url is empty")
	ErrEmptyFolderName = errors.New("folder name is empty")
	ErrInvalidCategory = errors.New("invalid category")
	ErrEmptySelection  = errors.New("no links selected")
)

// Lookups against the mirror.
var (
	ErrUnknownLink   = errors.New("unknown link")
	ErrUnknownFolder = order.ErrUnknownFolder
)

// Illegal transitions and collaborator failures.
var (
	ErrEnrichment        = errors.New("metadata lookup failed")
	ErrCreateInProgress  = errors.New("a link is already being saved")
	ErrReadWhileFavorite = errors.New("favorite links cannot be marked as read")
	ErrSelectionMode     = errors.New("not available in selection mode")
)
