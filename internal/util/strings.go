package util

const shortIDLength = 12

// ShortID truncates an engine id to the conventional 12 character form.
func ShortID(id string) string {
	if len(id) > shortIDLength {
		return id[:shortIDLength]
	}
	return id
}
