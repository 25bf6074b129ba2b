package command

// CreateArticle starts a draft. ArticleID is optional; a new one is generated when empty.
type CreateArticle struct {
	ArticleID        string `json:"article_id" validate:"omitempty,uuid"`
	Title            string `json:"title" validate:"required"`
	Description      string `json:"description"`
	ShortDescription string `json:"short_description"`
}

type UpdateArticle struct {
	ArticleID        string `json:"article_id" validate:"required,uuid"`
	Title            string `json:"title" validate:"required"`
	Description      string `json:"description"`
	ShortDescription string `json:"short_description"`
}

type PublishArticle struct {
	ArticleID string `json:"article_id" validate:"required,uuid"`
}

type UnpublishArticle struct {
	ArticleID string `json:"article_id" validate:"required,uuid"`
}

type ArchiveArticle struct {
	ArticleID string `json:"article_id" validate:"required,uuid"`
}

type DeleteArticle struct {
	ArticleID string `json:"article_id" validate:"required,uuid"`
}
