package radar

// Comment is a reply collected under a deep-crawled post.
type Comment struct {
	Author  string `json:"author,omitempty"`
	Content string `json:"content"`
}

// Post is a deep-crawled note or video, linked back to its topic and task.
type Post struct {
	PostID         string    `json:"post_id"`
	Platform       string    `json:"platform"`
	TopicID        string    `json:"topic_id,omitempty"`
	CrawlingTaskID string    `json:"crawling_task_id"`
	Keyword        string    `json:"keyword"`
	Title          string    `json:"title"`
	URL            string    `json:"url"`
	Author         string    `json:"author,omitempty"`
	Content        string    `json:"content,omitempty"`
	Comments       []Comment `json:"comments,omitempty"`
	CrawledAt      int64     `json:"crawled_at"`
}

// Alert is an operator notification.
type Alert struct {
	Kind     string `json:"kind"`
	Platform string `json:"platform"`
	Title    string `json:"title"`
	Content  string `json:"content"`
}

// Alert kinds.
const (
	AlertCookieMissing = "cookie_missing"
	AlertCookieExpired = "cookie_expired"
	AlertCircuitOpen   = "circuit_open"
)
