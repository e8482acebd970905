package core

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"pkt.systems/notesync/schema"
)

// newFolderID returns a unique, time-ordered folder id.
func newFolderID() schema.DocID {
	id, err := uuid.NewV7()
	if err != nil {
		return schema.TextID("folder-" + strconv.FormatInt(time.Now().UnixNano(), 10))
	}
	return schema.TextID("folder-" + id.String())
}

func newMessageID() string {
	return uuid.NewString()
}
