package weather

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"famcal/internal/log"
	"famcal/internal/model"
)

const (
	// DefaultFeedURL is the JMA regular publication feed that lists the
	// current weekly forecast documents per prefecture.
	DefaultFeedURL = "https://www.data.jma.go.jp/developer/xml/feed/regular_l.xml"

	cacheTTL = 10 * time.Minute
)

// Service fetches the weekly forecast for one configured area from the JMA
// XML feed. Results are cached for ten minutes.
type Service struct {
	client  *http.Client
	feedURL string
	area    string

	mu        sync.Mutex
	cached    []model.WeatherDay
	fetchedAt time.Time
}

// New creates a Service for the given forecast area title,
// e.g. "神奈川県府県週間天気予報".
func New(area string) *Service {
	return &Service{
		client:  &http.Client{Timeout: 15 * time.Second},
		feedURL: DefaultFeedURL,
		area:    area,
	}
}

// NewWithFeed is New with an explicit feed URL, used by tests.
func NewWithFeed(area, feedURL string) *Service {
	s := New(area)
	s.feedURL = feedURL
	return s
}

// Forecast returns the per-date forecast entries for the configured area.
// The window is whatever the feed publishes (typically the next 7 days);
// days outside it simply have no entry.
func (s *Service) Forecast(ctx context.Context) ([]model.WeatherDay, error) {
	s.mu.Lock()
	if s.cached != nil && time.Since(s.fetchedAt) < cacheTTL {
		cached := s.cached
		s.mu.Unlock()
		return cached, nil
	}
	s.mu.Unlock()

	feed, err := s.get(ctx, s.feedURL)
	if err != nil {
		return nil, fmt.Errorf("weather: feed fetch failed: %w", err)
	}

	forecastURL, err := findAreaEntry(feed, s.area)
	if err != nil {
		return nil, fmt.Errorf("weather: %w", err)
	}

	body, err := s.get(ctx, forecastURL)
	if err != nil {
		return nil, fmt.Errorf("weather: forecast fetch failed: %w", err)
	}

	days, err := parseForecast(body)
	if err != nil {
		return nil, fmt.Errorf("weather: forecast parse failed: %w", err)
	}

	log.Info("weather forecast fetched", "area", s.area, "days", len(days))

	s.mu.Lock()
	s.cached = days
	s.fetchedAt = time.Now()
	s.mu.Unlock()

	return days, nil
}

func (s *Service) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// atom feed structures; only the fields the lookup needs.
type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Content string `xml:"content"`
	Link    struct {
		Href string `xml:"href,attr"`
	} `xml:"link"`
}

// findAreaEntry locates the feed entry whose content mentions the area
// title and returns its document link.
func findAreaEntry(feed []byte, area string) (string, error) {
	var parsed atomFeed
	if err := xml.Unmarshal(feed, &parsed); err != nil {
		return "", fmt.Errorf("feed parse failed: %w", err)
	}
	for _, entry := range parsed.Entries {
		if strings.Contains(entry.Content, area) && entry.Link.Href != "" {
			return entry.Link.Href, nil
		}
	}
	return "", fmt.Errorf("area %q not found in feed", area)
}

type timeDefine struct {
	TimeID   string `xml:"timeId,attr"`
	DateTime string `xml:"DateTime"`
}

type refValue struct {
	RefID string `xml:"refID,attr"`
	Value string `xml:",chardata"`
}

type observation struct {
	weather     string
	code        string
	precipProb  string
	reliability string
}

// parseForecast extracts per-date entries from the 区域予報 block of a JMA
// weekly forecast document. The document interleaves several time series
// (weather, precipitation probability, reliability) that share timeId
// references, so the walk collects every refID-tagged leaf and joins them
// against the first TimeDefines list.
func parseForecast(data []byte) ([]model.WeatherDay, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	inArea := false
	areaDepth := 0
	definesSeen := false
	var defines []timeDefine
	byRef := make(map[string]*observation)

	value := func(ref string) *observation {
		o, ok := byRef[ref]
		if !ok {
			o = &observation{}
			byRef[ref] = o
		}
		return o
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if !inArea {
				if t.Name.Local == "MeteorologicalInfos" && attr(t, "type") == "区域予報" {
					inArea = true
					areaDepth = 1
				}
				continue
			}

			switch t.Name.Local {
			case "TimeDefines":
				// Every time series shares the date axis of the first
				// TimeDefines group; later groups are consumed and
				// ignored so dates are not duplicated.
				var tds struct {
					Defines []timeDefine `xml:"TimeDefine"`
				}
				if err := dec.DecodeElement(&tds, &t); err != nil {
					return nil, err
				}
				if !definesSeen {
					defines = tds.Defines
					definesSeen = true
				}
			case "Weather":
				var rv refValue
				if err := dec.DecodeElement(&rv, &t); err != nil {
					return nil, err
				}
				value(rv.RefID).weather = strings.TrimSpace(rv.Value)
			case "WeatherCode":
				var rv refValue
				if err := dec.DecodeElement(&rv, &t); err != nil {
					return nil, err
				}
				value(rv.RefID).code = strings.TrimSpace(rv.Value)
			case "ProbabilityOfPrecipitation":
				var rv refValue
				if err := dec.DecodeElement(&rv, &t); err != nil {
					return nil, err
				}
				value(rv.RefID).precipProb = strings.TrimSpace(rv.Value)
			case "ReliabilityClass":
				var rv refValue
				if err := dec.DecodeElement(&rv, &t); err != nil {
					return nil, err
				}
				value(rv.RefID).reliability = strings.TrimSpace(rv.Value)
			default:
				areaDepth++
			}

		case xml.EndElement:
			if inArea {
				areaDepth--
				if areaDepth == 0 {
					inArea = false
				}
			}
		}
	}

	if len(defines) == 0 {
		return nil, errors.New("no 区域予報 time series found")
	}

	days := make([]model.WeatherDay, 0, len(defines))
	for _, td := range defines {
		date, _, _ := strings.Cut(td.DateTime, "T")
		if date == "" || td.TimeID == "" {
			continue
		}
		o := byRef[td.TimeID]
		if o == nil || o.weather == "" || o.code == "" {
			continue
		}
		days = append(days, model.WeatherDay{
			DateKey:     date,
			Weather:     o.weather,
			Code:        o.code,
			Emoji:       strings.Join(EmojiForCode(o.code), ""),
			PrecipProb:  o.precipProb,
			Reliability: o.reliability,
		})
	}

	return days, nil
}

func attr(se xml.StartElement, name string) string {
	for _, a := range se.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}
