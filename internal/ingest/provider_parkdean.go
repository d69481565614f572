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

// ParkdeanParser reads schema.org Offer items from application/ld+json
// blocks, either bare or wrapped in an ItemList.
type ParkdeanParser struct{}

type ldNode struct {
	Type             string           `json:"@type"`
	ItemListElement  []ldNode         `json:"itemListElement"`
	Item             *ldNode          `json:"item"`
	Name             string           `json:"name"`
	Description      string           `json:"description"`
	Price            looseText        `json:"price"`
	Availability     string           `json:"availability"`
	URL              string           `json:"url"`
	ValidFrom        string           `json:"validFrom"`
	ValidThrough     string           `json:"validThrough"`
	Identifier       looseText        `json:"identifier"`
	Discount         looseText        `json:"discount"`
	EligibleDuration *ldQuantity      `json:"eligibleDuration"`
	ItemOffered      *ldAccommodation `json:"itemOffered"`
}

type ldQuantity struct {
	Value    looseText `json:"value"`
	UnitCode string    `json:"unitCode"`
}

type ldAccommodation struct {
	Name             string    `json:"name"`
	Identifier       looseText `json:"identifier"`
	Category         string    `json:"category"`
	NumberOfBedrooms *int      `json:"numberOfBedrooms"`
	PetsAllowed      *bool     `json:"petsAllowed"`
	ContainedInPlace *struct {
		Identifier looseText `json:"identifier"`
		Name       string    `json:"name"`
	} `json:"containedInPlace"`
}

func (p *ParkdeanParser) BuildSearchURL(baseURL string, intent models.SearchIntent) (string, error) {
	q := url.Values{}
	q.Set("startDate", intent.StayStartDate)
	q.Set("nights", strconv.Itoa(intent.Nights))
	q.Set("guests", strconv.Itoa(intent.Adults+intent.Children))
	if intent.Pets {
		q.Set("petFriendly", "true")
	}
	if intent.Region != "" {
		q.Set("region", intent.Region)
	}
	if len(intent.ParkIDs) > 0 {
		q.Set("parks", strings.Join(intent.ParkIDs, ","))
	}
	return buildURL(baseURL, "/holidays/search", q)
}

func (p *ParkdeanParser) BuildOffersURL(baseURL string) string {
	u, err := buildURL(baseURL, "/offers", nil)
	if err != nil {
		return ""
	}
	return u
}

func (p *ParkdeanParser) WaitSelector() string { return "main" }

// offers collects every Offer node from all ld+json blocks on the page.
// Blocks that fail to decode are skipped; sites often ship unrelated or
// malformed structured data next to the listing.
func (p *ParkdeanParser) offers(html []byte) ([]ldNode, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	var found []ldNode
	var walk func(n ldNode)
	walk = func(n ldNode) {
		if strings.EqualFold(n.Type, "Offer") {
			found = append(found, n)
		}
		if n.Item != nil {
			walk(*n.Item)
		}
		for _, child := range n.ItemListElement {
			walk(child)
		}
	}

	doc.Find("script[type='application/ld+json']").Each(func(i int, s *goquery.Selection) {
		raw := bytes.TrimSpace([]byte(s.Text()))
		if len(raw) == 0 {
			return
		}
		if raw[0] == '[' {
			var nodes []ldNode
			if json.Unmarshal(raw, &nodes) == nil {
				for _, n := range nodes {
					walk(n)
				}
			}
			return
		}
		var n ldNode
		if json.Unmarshal(raw, &n) == nil {
			walk(n)
		}
	})
	return found, nil
}

func (p *ParkdeanParser) ParseSearchResults(html []byte, intent models.SearchIntent) ([]models.RawCandidate, error) {
	nodes, err := p.offers(html)
	if err != nil {
		return nil, err
	}

	out := make([]models.RawCandidate, 0, len(nodes))
	for _, n := range nodes {
		if n.ItemOffered == nil {
			// A promotion rather than a bookable stay.
			continue
		}
		accom := n.ItemOffered
		c := models.RawCandidate{
			AccomTypeID:       strings.TrimSpace(string(accom.Identifier)),
			AccommodationType: strings.ToLower(strings.TrimSpace(accom.Category)),
			PropertyName:      normalizeSpace(accom.Name),
			Bedrooms:          accom.NumberOfBedrooms,
			PetsAllowed:       accom.PetsAllowed,
			SourceURL:         n.URL,
			Availability:      schemaAvailability(n.Availability),
		}
		if accom.ContainedInPlace != nil {
			c.ParkID = strings.TrimSpace(string(accom.ContainedInPlace.Identifier))
			c.PropertyName = normalizeSpace(accom.ContainedInPlace.Name + " " + c.PropertyName)
		}
		if day, err := ParseStayDate(n.ValidFrom); err == nil {
			c.StayStartDate = day
		}
		if n.EligibleDuration != nil {
			if nights, err := ParseNights(string(n.EligibleDuration.Value)); err == nil {
				c.Nights = nights
			}
		}
		if price, err := ParsePrice(string(n.Price)); err == nil {
			c.PriceTotal = price
		}
		out = append(out, c)
	}
	return out, nil
}

func (p *ParkdeanParser) ParseOffers(html []byte) ([]models.Offer, error) {
	nodes, err := p.offers(html)
	if err != nil {
		return nil, err
	}

	var out []models.Offer
	for _, n := range nodes {
		if n.ItemOffered != nil {
			continue
		}
		out = append(out, models.Offer{
			Title:           n.Name,
			Description:     n.Description,
			PromoCode:       string(n.Identifier),
			DiscountPercent: parsePercent(string(n.Discount) + "%"),
			ValidUntil:      parseValidUntil(n.ValidThrough),
			URL:             n.URL,
		})
	}
	return out, nil
}

func schemaAvailability(v string) models.Availability {
	switch strings.TrimPrefix(strings.TrimPrefix(v, "https://schema.org/"), "http://schema.org/") {
	case "InStock", "LimitedAvailability", "OnlineOnly":
		return models.AvailabilityAvailable
	case "SoldOut", "OutOfStock", "Discontinued":
		return models.AvailabilitySoldOut
	}
	return models.AvailabilityUnknown
}
