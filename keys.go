package datacache

const (
	// DictionaryMarker is appended to a key to name its dictionary form.
	DictionaryMarker = "-dict"
	// LinkedMarker is appended to a key to name its linked-dictionary form.
	LinkedMarker = "-linked"

	itemPrefix = "item:"
)

func dictionaryKey(key string) string { return key + DictionaryMarker }

func linkedKey(key string) string { return key + LinkedMarker }

func itemKey(contentType, key string) string { return itemPrefix + contentType + ":" + key }
