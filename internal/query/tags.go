package query

import (
	"github.com/google/uuid"
)

// ListTag covers every list and criteria query result
const ListTag = "article.list"

// ItemTag covers cached entries holding the article with id
func ItemTag(id uuid.UUID) string {
	return "article." + id.String()
}

// StatusTag covers criteria queries filtered by status
func StatusTag(status string) string {
	return "article.status." + status
}
