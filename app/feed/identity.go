package feed

import (
	"fmt"
	"hash/crc32"
)

// ItemID derives the archive id of an entry. An explicit guid wins; without
// one the id covers title and description, so two guid-less entries with the
// same title and description share an id.
func ItemID(guid, title, description string) string {
	source := guid
	if source == "" {
		source = title + description
	}
	return fmt.Sprintf("%08x", crc32.ChecksumIEEE([]byte(source)))
}

// AssignID sets item.ID from its identifying fields.
func (item *Item) AssignID() {
	var guid string
	if item.GUID != nil {
		guid = item.GUID.Value
	}
	item.ID = ItemID(guid, item.Title, item.Description)
}
