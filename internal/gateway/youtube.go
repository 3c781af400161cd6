package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tubelens/tubelens/internal/models"
	"github.com/tubelens/tubelens/internal/rotation"
	"github.com/tubelens/tubelens/internal/usage"
)

// defaultYouTubeBaseURL is the YouTube Data API v3 endpoint root.
const defaultYouTubeBaseURL = "https://www.googleapis.com/youtube/v3"

// Per-endpoint quota costs from the documented YouTube Data API cost
// schedule. search.list is two orders of magnitude more expensive than the
// plain list endpoints.
const (
	youtubeCostChannelsList int64 = 1
	youtubeCostVideosList   int64 = 1
	youtubeCostSearchList   int64 = 100
)

// YouTubeGateway is the sole path to the YouTube Data API.
type YouTubeGateway struct {
	gateway

	baseURL    string
	httpClient *http.Client
}

// NewYouTubeGateway constructs a YouTube gateway. baseURL overrides the
// production endpoint when non-empty; tests point it at a local server.
func NewYouTubeGateway(selector *rotation.Selector, recorder *usage.Recorder, baseURL string) *YouTubeGateway {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultYouTubeBaseURL
	}
	return &YouTubeGateway{
		gateway:    newGateway(models.ProviderYouTube, selector, recorder),
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// Channel describes a YouTube channel summary.
type Channel struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	Subscribers     uint64 `json:"subscribers"`
	VideoCount      uint64 `json:"video_count"`
	ViewCount       uint64 `json:"view_count"`
	UploadsPlaylist string `json:"uploads_playlist"`
}

// Video describes one channel upload.
type Video struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	PublishedAt time.Time `json:"published_at"`
}

// VideoStatistics carries per-video performance counters.
type VideoStatistics struct {
	ID       string `json:"id"`
	Views    uint64 `json:"views"`
	Likes    uint64 `json:"likes"`
	Comments uint64 `json:"comments"`
}

// Channel fetches a channel summary. Costs one quota unit.
func (g *YouTubeGateway) Channel(ctx context.Context, ownerID uint64, channelID string) (*Channel, error) {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return nil, fmt.Errorf("gateway: empty channel id")
	}

	var out *Channel
	errDo := g.do(ctx, ownerID, "channels.list", func(ctx context.Context, secret string) callResult {
		params := url.Values{}
		params.Set("part", "snippet,statistics,contentDetails")
		params.Set("id", channelID)

		var payload channelListResponse
		res := g.getJSON(ctx, secret, "channels.list", "channels", params, youtubeCostChannelsList, &payload)
		if res.err != nil {
			return res
		}
		if len(payload.Items) == 0 {
			return callFailed(&RemoteError{
				Provider: models.ProviderYouTube,
				Endpoint: "channels.list",
				Err:      fmt.Errorf("channel not found: %s", channelID),
			})
		}
		item := payload.Items[0]
		out = &Channel{
			ID:              item.ID,
			Title:           item.Snippet.Title,
			Description:     item.Snippet.Description,
			Subscribers:     parseCount(item.Statistics.SubscriberCount),
			VideoCount:      parseCount(item.Statistics.VideoCount),
			ViewCount:       parseCount(item.Statistics.ViewCount),
			UploadsPlaylist: item.ContentDetails.RelatedPlaylists.Uploads,
		}
		return res
	})
	if errDo != nil {
		return nil, errDo
	}
	return out, nil
}

// ListVideos returns the channel's most recent videos via search.list.
// Costs 100 quota units per call.
func (g *YouTubeGateway) ListVideos(ctx context.Context, ownerID uint64, channelID string, maxResults int) ([]Video, error) {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return nil, fmt.Errorf("gateway: empty channel id")
	}
	if maxResults < 1 || maxResults > 50 {
		maxResults = 25
	}

	var out []Video
	errDo := g.do(ctx, ownerID, "search.list", func(ctx context.Context, secret string) callResult {
		params := url.Values{}
		params.Set("part", "snippet")
		params.Set("channelId", channelID)
		params.Set("type", "video")
		params.Set("order", "date")
		params.Set("maxResults", strconv.Itoa(maxResults))

		var payload searchListResponse
		res := g.getJSON(ctx, secret, "search.list", "search", params, youtubeCostSearchList, &payload)
		if res.err != nil {
			return res
		}
		out = make([]Video, 0, len(payload.Items))
		for _, item := range payload.Items {
			out = append(out, Video{
				ID:          item.ID.VideoID,
				Title:       item.Snippet.Title,
				Description: item.Snippet.Description,
				PublishedAt: item.Snippet.PublishedAt,
			})
		}
		return res
	})
	if errDo != nil {
		return nil, errDo
	}
	return out, nil
}

// VideoStats fetches statistics for up to 50 videos in one call. Costs one
// quota unit.
func (g *YouTubeGateway) VideoStats(ctx context.Context, ownerID uint64, videoIDs []string) ([]VideoStatistics, error) {
	ids := make([]string, 0, len(videoIDs))
	for _, id := range videoIDs {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			ids = append(ids, trimmed)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("gateway: no video ids")
	}
	if len(ids) > 50 {
		ids = ids[:50]
	}

	var out []VideoStatistics
	errDo := g.do(ctx, ownerID, "videos.list", func(ctx context.Context, secret string) callResult {
		params := url.Values{}
		params.Set("part", "statistics")
		params.Set("id", strings.Join(ids, ","))

		var payload videoListResponse
		res := g.getJSON(ctx, secret, "videos.list", "videos", params, youtubeCostVideosList, &payload)
		if res.err != nil {
			return res
		}
		out = make([]VideoStatistics, 0, len(payload.Items))
		for _, item := range payload.Items {
			out = append(out, VideoStatistics{
				ID:       item.ID,
				Views:    parseCount(item.Statistics.ViewCount),
				Likes:    parseCount(item.Statistics.LikeCount),
				Comments: parseCount(item.Statistics.CommentCount),
			})
		}
		return res
	})
	if errDo != nil {
		return nil, errDo
	}
	return out, nil
}

// getJSON performs one GET against the Data API with the key as a query
// parameter, decoding the payload into out on success.
func (g *YouTubeGateway) getJSON(ctx context.Context, secret, endpoint, path string, params url.Values, cost int64, out any) callResult {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	params.Set("key", secret)
	requestURL := g.baseURL + "/" + path + "?" + params.Encode()

	req, errRequest := http.NewRequestWithContext(reqCtx, http.MethodGet, requestURL, nil)
	if errRequest != nil {
		return callFailed(&RemoteError{Provider: models.ProviderYouTube, Endpoint: endpoint, Err: errRequest})
	}

	resp, errDo := g.httpClient.Do(req)
	if errDo != nil {
		return callFailed(&RemoteError{Provider: models.ProviderYouTube, Endpoint: endpoint, Err: errDo})
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		remoteErr := &RemoteError{
			Provider:   models.ProviderYouTube,
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
		if youtubeRejection(resp.StatusCode, body) {
			remoteErr.Rejected = true
			return callRejected(remoteErr)
		}
		return callFailed(remoteErr)
	}

	if errDecode := json.NewDecoder(resp.Body).Decode(out); errDecode != nil {
		return callFailed(&RemoteError{
			Provider: models.ProviderYouTube,
			Endpoint: endpoint,
			Err:      fmt.Errorf("decode response: %w", errDecode),
		})
	}
	return callOK(cost)
}

// googleErrorBody is the error envelope returned by Google APIs.
type googleErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

// youtubeRejection reports whether the response means the credential itself
// is out of quota or not accepted, as opposed to a transient failure.
func youtubeRejection(statusCode int, body []byte) bool {
	if statusCode == http.StatusUnauthorized {
		return true
	}
	var payload googleErrorBody
	if errUnmarshal := json.Unmarshal(body, &payload); errUnmarshal != nil {
		return false
	}
	for _, detail := range payload.Error.Errors {
		switch detail.Reason {
		case "quotaExceeded", "dailyLimitExceeded", "rateLimitExceeded", "keyInvalid":
			return true
		}
	}
	return false
}

// parseCount parses a numeric string counter, returning zero when absent.
func parseCount(raw string) uint64 {
	if raw == "" {
		return 0
	}
	value, errParse := strconv.ParseUint(raw, 10, 64)
	if errParse != nil {
		return 0
	}
	return value
}

// channelListResponse mirrors the channels.list payload.
type channelListResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title       string `json:"title"`
			Description string `json:"description"`
		} `json:"snippet"`
		Statistics struct {
			SubscriberCount string `json:"subscriberCount"`
			VideoCount      string `json:"videoCount"`
			ViewCount       string `json:"viewCount"`
		} `json:"statistics"`
		ContentDetails struct {
			RelatedPlaylists struct {
				Uploads string `json:"uploads"`
			} `json:"relatedPlaylists"`
		} `json:"contentDetails"`
	} `json:"items"`
}

// searchListResponse mirrors the search.list payload.
type searchListResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title       string    `json:"title"`
			Description string    `json:"description"`
			PublishedAt time.Time `json:"publishedAt"`
		} `json:"snippet"`
	} `json:"items"`
}

// videoListResponse mirrors the videos.list payload.
type videoListResponse struct {
	Items []struct {
		ID         string `json:"id"`
		Statistics struct {
			ViewCount    string `json:"viewCount"`
			LikeCount    string `json:"likeCount"`
			CommentCount string `json:"commentCount"`
		} `json:"statistics"`
	} `json:"items"`
}
