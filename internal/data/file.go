package data

import "fmt"

// File describes one downloadable entry behind a share link.
type File struct {
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	SizeHuman string `json:"size_human"`
	Link      string `json:"link"`
	Host      string `json:"host"`
	ID        string `json:"id,omitempty"`
	Supported bool   `json:"supported"`
}

// Listing is the browse response for a share link.
type Listing struct {
	URL               string `json:"url"`
	TotalFiles        int    `json:"total_files"`
	Files             []File `json:"files"`
	PasswordProtected bool   `json:"password_protected"`
	Service           string `json:"service"`
}

// ProviderStatus reports a provider's authentication state.
type ProviderStatus struct {
	Service       string `json:"service"`
	Authenticated bool   `json:"authenticated"`
}

// HumanSize renders a byte count the way the browse listing expects it.
func HumanSize(n int64) string {
	switch {
	case n <= 0:
		return ""
	case n >= 1<<30:
		return fmt.Sprintf("%.2f GB", float64(n)/float64(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.2f MB", float64(n)/float64(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.2f KB", float64(n)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
