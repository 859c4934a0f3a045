package upload

import "fmt"

func stagingKey(sessionID string, index int) string {
	return fmt.Sprintf("session:%s:%d", sessionID, index)
}

// objectKey shards by the first three digest characters. The object id keeps
// keys unique even when two sessions promote identical content.
func objectKey(bucketID, digest, objectID string) string {
	prefix := digest
	if len(prefix) > 3 {
		prefix = prefix[:3]
	}
	return fmt.Sprintf("objects/%s/%s/%s", bucketID, prefix, objectID)
}
