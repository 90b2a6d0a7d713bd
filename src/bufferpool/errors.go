package bufferpool

import (
	"github.com/go-faster/errors"

	"github.com/kvarch/bufferpoold/src/pkg/common"
)

func errPagePinned(pageID common.PageID) error {
	return errors.Errorf("buffer pool: page %d is pinned, cannot delete", pageID)
}
