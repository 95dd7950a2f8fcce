package dispatch

import "strings"

// Fixed job service paths, relative to the services base URL.
const (
	PathMapImage      = "/new_map_image/run"
	PathGenerate      = "/ai2col/run"
	PathKeywordSearch = "/keywords_search/run"
	PathURLCrawl      = "/url2text/run"
	PathPostSync      = "/wp_post_mymap/run"
)

// Endpoints holds the absolute URL of each job service.
type Endpoints struct {
	MapImage      string
	Generate      string
	KeywordSearch string
	URLCrawl      string
	PostSync      string
}

// DefaultEndpoints joins the fixed paths onto baseURL.
func DefaultEndpoints(baseURL string) Endpoints {
	base := strings.TrimRight(baseURL, "/")
	return Endpoints{
		MapImage:      base + PathMapImage,
		Generate:      base + PathGenerate,
		KeywordSearch: base + PathKeywordSearch,
		URLCrawl:      base + PathURLCrawl,
		PostSync:      base + PathPostSync,
	}
}
