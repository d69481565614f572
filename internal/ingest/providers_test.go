package ingest

import (
	"net/url"
	"strings"
	"testing"

	"github.com/david/holiday-watch/internal/models"
)

var testIntent = models.SearchIntent{
	ProviderCode:  "hoseasons",
	StayStartDate: "2025-07-04",
	Nights:        7,
	Adults:        2,
	Children:      2,
	Pets:          true,
	MinBedrooms:   2,
	Region:        "cornwall",
	ParkIDs:       []string{"p1", "p2"},
}

const hoseasonsResults = `
<html><body>
<div class="results">
  <div class="property-card" data-park-id="p1" data-accom-type="LODGE-3" data-arrival="2025-07-04" data-nights="7" data-bedrooms="3" data-pets="true">
    <h3 class="property-card__name"> Riverside   Lodge </h3>
    <a class="property-card__link" href="/holiday/riverside-lodge">View</a>
    <span class="property-card__price">£1,249.00</span>
    <span class="property-card__availability">Book now</span>
  </div>
  <div class="property-card" data-park-id="p2" data-accom-type="CARAVAN" data-arrival="2025-07-04" data-nights="7">
    <h3 class="property-card__name">Seaview Caravan</h3>
    <span class="property-card__price">Call for price</span>
    <span class="property-card__availability">Sold out</span>
  </div>
</div>
</body></html>`

func TestHoseasonsParser_ParseSearchResults(t *testing.T) {
	p := &HoseasonsParser{}
	got, err := p.ParseSearchResults([]byte(hoseasonsResults), testIntent)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 cards, got %d", len(got))
	}

	first := got[0]
	if first.StayStartDate != "2025-07-04" || first.Nights != 7 {
		t.Fatalf("unexpected stay: %s/%d", first.StayStartDate, first.Nights)
	}
	if first.PriceTotal != 1249 {
		t.Fatalf("expected price 1249, got %v", first.PriceTotal)
	}
	if first.Bedrooms == nil || *first.Bedrooms != 3 {
		t.Fatalf("expected 3 bedrooms, got %v", first.Bedrooms)
	}
	if first.PetsAllowed == nil || !*first.PetsAllowed {
		t.Fatalf("expected pets allowed")
	}
	if first.PropertyName != "Riverside Lodge" {
		t.Fatalf("unexpected name %q", first.PropertyName)
	}
	if first.Availability != models.AvailabilityAvailable {
		t.Fatalf("unexpected availability %s", first.Availability)
	}
	if first.SourceURL != "/holiday/riverside-lodge" {
		t.Fatalf("unexpected link %q", first.SourceURL)
	}

	second := got[1]
	if second.PriceTotal != 0 {
		t.Fatalf("unpriced card must not get a price, got %v", second.PriceTotal)
	}
	if second.Bedrooms != nil || second.PetsAllowed != nil {
		t.Fatalf("missing attributes must stay unknown")
	}
	if second.Availability != models.AvailabilitySoldOut {
		t.Fatalf("unexpected availability %s", second.Availability)
	}
}

func TestHoseasonsParser_BuildSearchURL(t *testing.T) {
	p := &HoseasonsParser{}
	raw, err := p.BuildSearchURL("https://www.hoseasons.co.uk/", testIntent)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("bad url %q: %v", raw, err)
	}
	if u.Path != "/search" {
		t.Fatalf("unexpected path %q", u.Path)
	}
	q := u.Query()
	if q.Get("arrival") != "2025-07-04" || q.Get("nights") != "7" || q.Get("pets") != "1" || q.Get("parks") != "p1,p2" {
		t.Fatalf("unexpected query %v", q)
	}

	if _, err := p.BuildSearchURL("not a url", testIntent); err == nil {
		t.Fatalf("expected an error for a relative base url")
	}
}

const hoseasonsDeals = `
<div class="deal-card">
  <h3 class="deal-card__title">Summer <b>Sale</b></h3>
  <p class="deal-card__description">Up to 20% off <script>alert(1)</script>lodges</p>
  <span class="deal-card__code">summer20</span>
  <span class="deal-card__saving">Save 20%</span>
  <span class="deal-card__expiry">Book by 31st March 2025</span>
  <a href="/deals/summer">More</a>
</div>`

func TestHoseasonsParser_ParseOffers(t *testing.T) {
	p := &HoseasonsParser{}
	offers, err := p.ParseOffers([]byte(hoseasonsDeals))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(offers) != 1 {
		t.Fatalf("expected 1 offer, got %d", len(offers))
	}
	o := offers[0]
	if o.DiscountPercent != 20 {
		t.Fatalf("expected 20%% discount, got %v", o.DiscountPercent)
	}
	if o.ValidUntil == nil || o.ValidUntil.Format("2006-01-02") != "2025-03-31" {
		t.Fatalf("unexpected expiry %v", o.ValidUntil)
	}
	if strings.Contains(o.Description, "<") {
		t.Fatalf("goquery text should not contain markup: %q", o.Description)
	}
}

const havenResults = `
<html><head>
<script id="__NEXT_DATA__" type="application/json">
{"props":{"pageProps":{"searchResults":{"results":[
  {"parkId":"haven-42","parkName":"Devon Cliffs","arrivalDate":"2025-07-04T00:00:00","duration":7,
   "accommodation":{"typeId":"PREM-2","typeName":"Premium Caravan","category":"Caravan","bedrooms":2,"petFriendly":false},
   "price":{"total":"899.00"},"availability":"AVAILABLE","link":"/devon-cliffs/prem-2"},
  {"parkId":"haven-42","parkName":"Devon Cliffs","arrivalDate":"2025-07-04","duration":7,
   "accommodation":{"typeId":"SAVER-3","typeName":"Saver Caravan"},
   "price":{"total":649},"availability":"SOLD_OUT"}
]}}}}
</script>
</head><body></body></html>`

func TestHavenParser_ParseSearchResults(t *testing.T) {
	p := &HavenParser{}
	got, err := p.ParseSearchResults([]byte(havenResults), testIntent)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].StayStartDate != "2025-07-04" || got[0].PriceTotal != 899 || got[0].ParkID != "haven-42" {
		t.Fatalf("unexpected first result %+v", got[0])
	}
	if got[0].PetsAllowed == nil || *got[0].PetsAllowed {
		t.Fatalf("expected pets explicitly disallowed")
	}
	if got[0].AccommodationType != "caravan" {
		t.Fatalf("unexpected type %q", got[0].AccommodationType)
	}
	if got[1].PriceTotal != 649 {
		t.Fatalf("numeric price should decode, got %v", got[1].PriceTotal)
	}
	if got[1].Bedrooms != nil || got[1].PetsAllowed != nil {
		t.Fatalf("absent fields must stay nil")
	}
	if got[1].Availability != models.AvailabilitySoldOut {
		t.Fatalf("unexpected availability %s", got[1].Availability)
	}
}

func TestHavenParser_MissingNextDataIsEmpty(t *testing.T) {
	p := &HavenParser{}
	got, err := p.ParseSearchResults([]byte(`<html><body><div id="app"></div></body></html>`), testIntent)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no results, got %d", len(got))
	}
}

func TestHavenParser_BrokenNextDataIsParseError(t *testing.T) {
	p := &HavenParser{}
	_, err := p.ParseSearchResults([]byte(`<script id="__NEXT_DATA__">{"props":</script>`), testIntent)
	if err == nil {
		t.Fatalf("expected decode error")
	}
}

const centerParcsResults = `
<table class="availability">
<thead><tr><th>Village</th><th>Lodge</th><th>Arrive</th><th>Nights</th><th>Price</th><th>Pets</th><th></th></tr></thead>
<tbody>
<tr>
  <td class="village" data-village-id="sherwood">Sherwood Forest</td>
  <td class="lodge" data-lodge-code="WL3">Woodland Lodge, 3 bedroom</td>
  <td class="arrival">Friday 4th July 2025</td>
  <td class="nights">Fri-Mon 7 nights</td>
  <td class="price">£1,999</td>
  <td class="pets">Dog friendly</td>
  <td class="status"><a href="/book/WL3">Book</a></td>
</tr>
<tr>
  <td class="village" data-village-id="sherwood">Sherwood Forest</td>
  <td class="lodge" data-lodge-code="AP1">Apartment</td>
  <td class="arrival">TBC</td>
  <td class="nights">7 nights</td>
  <td class="price">£799</td>
  <td class="status">Fully booked</td>
</tr>
</tbody>
</table>`

func TestCenterParcsParser_ParseSearchResults(t *testing.T) {
	p := &CenterParcsParser{}
	got, err := p.ParseSearchResults([]byte(centerParcsResults), testIntent)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}

	lodge := got[0]
	if lodge.StayStartDate != "2025-07-04" || lodge.Nights != 7 || lodge.PriceTotal != 1999 {
		t.Fatalf("unexpected lodge %+v", lodge)
	}
	if lodge.Bedrooms == nil || *lodge.Bedrooms != 3 {
		t.Fatalf("expected 3 bedrooms, got %v", lodge.Bedrooms)
	}
	if lodge.PetsAllowed == nil || !*lodge.PetsAllowed {
		t.Fatalf("expected dog friendly lodge")
	}
	if lodge.AccommodationType != "lodge" || lodge.ParkID != "sherwood" || lodge.AccomTypeID != "WL3" {
		t.Fatalf("unexpected identifiers %+v", lodge)
	}

	apartment := got[1]
	if apartment.StayStartDate != "" {
		t.Fatalf("unreadable arrival must stay empty, got %q", apartment.StayStartDate)
	}
	if apartment.PetsAllowed != nil {
		t.Fatalf("no pets column means unknown policy")
	}
	if apartment.Availability != models.AvailabilitySoldOut {
		t.Fatalf("unexpected availability %s", apartment.Availability)
	}
}

const parkdeanResults = `
<html><head>
<script type="application/ld+json">{"@type":"Organization","name":"Parkdean Resorts"}</script>
<script type="application/ld+json">
{"@context":"https://schema.org","@type":"ItemList","itemListElement":[
  {"@type":"ListItem","position":1,"item":{"@type":"Offer","price":"1049.50","priceCurrency":"GBP",
    "availability":"https://schema.org/InStock","url":"https://www.parkdeanresorts.co.uk/book/1",
    "validFrom":"2025-07-04","eligibleDuration":{"@type":"QuantitativeValue","value":7,"unitCode":"DAY"},
    "itemOffered":{"@type":"Accommodation","name":"Gold Caravan","identifier":"GOLD-2","category":"Caravan",
      "numberOfBedrooms":2,"petsAllowed":true,"containedInPlace":{"identifier":"pd-17","name":"Newquay Holiday Park"}}}},
  {"@type":"Offer","name":"Spring saver","description":"Save on spring breaks","discount":"15","validThrough":"2025-04-30"}
]}
</script>
<script type="application/ld+json">{ not json </script>
</head><body><main></main></body></html>`

func TestParkdeanParser_ParseSearchResults(t *testing.T) {
	p := &ParkdeanParser{}
	got, err := p.ParseSearchResults([]byte(parkdeanResults), testIntent)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 bookable offer, got %d", len(got))
	}
	c := got[0]
	if c.StayStartDate != "2025-07-04" || c.Nights != 7 || c.PriceTotal != 1049.5 {
		t.Fatalf("unexpected candidate %+v", c)
	}
	if c.ParkID != "pd-17" || c.AccomTypeID != "GOLD-2" || c.PropertyName != "Newquay Holiday Park Gold Caravan" {
		t.Fatalf("unexpected identifiers %+v", c)
	}
	if c.Availability != models.AvailabilityAvailable {
		t.Fatalf("unexpected availability %s", c.Availability)
	}

	offers, err := p.ParseOffers([]byte(parkdeanResults))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(offers) != 1 || offers[0].Title != "Spring saver" || offers[0].DiscountPercent != 15 {
		t.Fatalf("unexpected offers %+v", offers)
	}
}
