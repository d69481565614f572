package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/david/holiday-watch/internal/models"
)

// HavenParser reads the search state a Next.js page embeds in its
// __NEXT_DATA__ script instead of scraping rendered markup.
type HavenParser struct{}

type havenNextData struct {
	Props struct {
		PageProps struct {
			SearchResults struct {
				Results []havenResult `json:"results"`
			} `json:"searchResults"`
			Offers []havenOffer `json:"offers"`
		} `json:"pageProps"`
	} `json:"props"`
}

type havenResult struct {
	ParkID        string `json:"parkId"`
	ParkName      string `json:"parkName"`
	ArrivalDate   string `json:"arrivalDate"`
	Duration      int    `json:"duration"`
	Accommodation struct {
		TypeID      string `json:"typeId"`
		TypeName    string `json:"typeName"`
		Category    string `json:"category"`
		Bedrooms    *int   `json:"bedrooms"`
		PetFriendly *bool  `json:"petFriendly"`
	} `json:"accommodation"`
	Price struct {
		Total looseText `json:"total"`
	} `json:"price"`
	Availability string `json:"availability"`
	Link         string `json:"link"`
}

type havenOffer struct {
	Headline        string    `json:"headline"`
	Body            string    `json:"body"`
	PromoCode       string    `json:"promoCode"`
	DiscountPercent looseText `json:"discountPercent"`
	EndDate         string    `json:"endDate"`
	Link            string    `json:"link"`
}

func (p *HavenParser) BuildSearchURL(baseURL string, intent models.SearchIntent) (string, error) {
	q := url.Values{}
	q.Set("date", intent.StayStartDate)
	q.Set("duration", strconv.Itoa(intent.Nights))
	q.Set("adults", strconv.Itoa(intent.Adults))
	q.Set("children", strconv.Itoa(intent.Children))
	q.Set("pets", strconv.FormatBool(intent.Pets))
	if len(intent.ParkIDs) > 0 {
		q.Set("park", strings.Join(intent.ParkIDs, ","))
	}
	if intent.Region != "" {
		q.Set("region", intent.Region)
	}
	return buildURL(baseURL, "/search-results", q)
}

func (p *HavenParser) BuildOffersURL(baseURL string) string {
	u, err := buildURL(baseURL, "/offers", nil)
	if err != nil {
		return ""
	}
	return u
}

func (p *HavenParser) WaitSelector() string { return "[data-testid='search-results']" }

func (p *HavenParser) nextData(html []byte) (*havenNextData, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	raw := strings.TrimSpace(doc.Find("script#__NEXT_DATA__").First().Text())
	if raw == "" {
		// No embedded state: an empty result, so the browser gets a turn.
		return &havenNextData{}, nil
	}
	var data havenNextData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("decode __NEXT_DATA__: %w", err)
	}
	return &data, nil
}

func (p *HavenParser) ParseSearchResults(html []byte, intent models.SearchIntent) ([]models.RawCandidate, error) {
	data, err := p.nextData(html)
	if err != nil {
		return nil, err
	}

	results := data.Props.PageProps.SearchResults.Results
	out := make([]models.RawCandidate, 0, len(results))
	for _, r := range results {
		c := models.RawCandidate{
			ParkID:            strings.TrimSpace(r.ParkID),
			AccomTypeID:       strings.TrimSpace(r.Accommodation.TypeID),
			AccommodationType: strings.ToLower(strings.TrimSpace(r.Accommodation.Category)),
			PropertyName:      normalizeSpace(r.ParkName + " " + r.Accommodation.TypeName),
			Bedrooms:          r.Accommodation.Bedrooms,
			PetsAllowed:       r.Accommodation.PetFriendly,
			SourceURL:         r.Link,
		}
		if day, err := ParseStayDate(r.ArrivalDate); err == nil {
			c.StayStartDate = day
		}
		if r.Duration >= 1 {
			c.Nights = r.Duration
		}
		if price, err := ParsePrice(string(r.Price.Total)); err == nil {
			c.PriceTotal = price
		}
		switch strings.ToUpper(strings.TrimSpace(r.Availability)) {
		case "AVAILABLE", "LIMITED":
			c.Availability = models.AvailabilityAvailable
		case "SOLD_OUT", "UNAVAILABLE":
			c.Availability = models.AvailabilitySoldOut
		default:
			c.Availability = models.AvailabilityUnknown
		}
		out = append(out, c)
	}
	return out, nil
}

func (p *HavenParser) ParseOffers(html []byte) ([]models.Offer, error) {
	data, err := p.nextData(html)
	if err != nil {
		return nil, err
	}

	out := make([]models.Offer, 0, len(data.Props.PageProps.Offers))
	for _, o := range data.Props.PageProps.Offers {
		discount, _ := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(string(o.DiscountPercent)), "%"), 64)
		out = append(out, models.Offer{
			Title:           o.Headline,
			Description:     o.Body,
			PromoCode:       o.PromoCode,
			DiscountPercent: discount,
			ValidUntil:      parseValidUntil(o.EndDate),
			URL:             o.Link,
		})
	}
	return out, nil
}
