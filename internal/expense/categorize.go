// Package expense classifies claim line items into reporting categories.
// Categories are derived from the item description at read time and are
// never persisted, so the keyword tables can evolve without migrations.
package expense

import "strings"

// Categorize returns the expense category for the given item description.
// It performs case-insensitive matching: exact match first, then substring
// match. Falls back to "Other" if no match is found.
func Categorize(description string) string {
	name := strings.ToLower(strings.TrimSpace(description))
	if name == "" {
		return "Other"
	}

	// Phase 1: exact match
	if cat, ok := exactMatch[name]; ok {
		return cat
	}

	// Phase 2: substring match (ordered longer/more-specific first)
	for _, entry := range substringMatches {
		if strings.Contains(name, entry.keyword) {
			return entry.category
		}
	}

	return "Other"
}

var exactMatch = map[string]string{
	// Travel
	"taxi":         "Travel",
	"uber":         "Travel",
	"lyft":         "Travel",
	"bus ticket":   "Travel",
	"train ticket": "Travel",
	"airfare":      "Travel",
	"flight":       "Travel",
	"parking":      "Travel",
	"tolls":        "Travel",
	"fuel":         "Travel",
	"gas":          "Travel",
	"mileage":      "Travel",
	"rental car":   "Travel",
	"subway":       "Travel",
	"ferry":        "Travel",

	// Lodging
	"hotel":   "Lodging",
	"motel":   "Lodging",
	"hostel":  "Lodging",
	"airbnb":  "Lodging",
	"lodging": "Lodging",

	// Meals
	"lunch":         "Meals",
	"dinner":        "Meals",
	"breakfast":     "Meals",
	"coffee":        "Meals",
	"catering":      "Meals",
	"pizza":         "Meals",
	"sandwiches":    "Meals",
	"snacks":        "Meals",
	"water bottles": "Meals",
	"per diem":      "Meals",

	// Materials
	"lumber":      "Materials",
	"plywood":     "Materials",
	"paint":       "Materials",
	"fabric":      "Materials",
	"muslin":      "Materials",
	"rope":        "Materials",
	"gaff tape":   "Materials",
	"gaffer tape": "Materials",
	"spike tape":  "Materials",
	"screws":      "Materials",
	"nails":       "Materials",
	"glue":        "Materials",
	"velcro":      "Materials",
	"foam":        "Materials",
	"canvas":      "Materials",
	"hardware":    "Materials",

	// Equipment
	"batteries":       "Equipment",
	"gel":             "Equipment",
	"gels":            "Equipment",
	"lamp":            "Equipment",
	"lamps":           "Equipment",
	"bulb":            "Equipment",
	"bulbs":           "Equipment",
	"cable":           "Equipment",
	"cables":          "Equipment",
	"xlr":             "Equipment",
	"dmx":             "Equipment",
	"extension cord":  "Equipment",
	"power strip":     "Equipment",
	"microphone":      "Equipment",
	"mic":             "Equipment",
	"sd card":         "Equipment",
	"adapter":         "Equipment",
	"clamp":           "Equipment",
	"clamps":          "Equipment",
	"safety cable":    "Equipment",
	"tool rental":     "Equipment",
	"lighting rental": "Equipment",

	// Wardrobe
	"costume":    "Wardrobe",
	"costumes":   "Wardrobe",
	"shoes":      "Wardrobe",
	"tights":     "Wardrobe",
	"makeup":     "Wardrobe",
	"wig":        "Wardrobe",
	"wigs":       "Wardrobe",
	"dry clean":  "Wardrobe",
	"laundry":    "Wardrobe",
	"alteration": "Wardrobe",
	"thread":     "Wardrobe",
	"zipper":     "Wardrobe",
	"buttons":    "Wardrobe",

	// Printing
	"programs":     "Printing",
	"posters":      "Printing",
	"flyers":       "Printing",
	"tickets":      "Printing",
	"copies":       "Printing",
	"printing":     "Printing",
	"lamination":   "Printing",
	"script copy":  "Printing",
	"sheet music":  "Printing",
	"scores":       "Printing",
	"binder":       "Printing",
	"binders":      "Printing",
	"ink":          "Printing",
	"toner":        "Printing",
	"paper":        "Printing",
	"cardstock":    "Printing",
	"name tags":    "Printing",
	"badge holder": "Printing",

	// Fees
	"permit":             "Fees",
	"license fee":        "Fees",
	"royalty":            "Fees",
	"royalties":          "Fees",
	"insurance":          "Fees",
	"deposit":            "Fees",
	"booking fee":        "Fees",
	"service fee":        "Fees",
	"processing fee":     "Fees",
	"venue rental":       "Fees",
	"rehearsal space":    "Fees",
	"storage unit":       "Fees",
	"shipping":           "Fees",
	"postage":            "Fees",
	"membership":         "Fees",
	"registration":       "Fees",
	"performance rights": "Fees",
}

var substringMatches = []struct {
	keyword  string
	category string
}{
	// Longer, more specific keywords first so they win over short ones.
	{"extension cord", "Equipment"},
	{"gaffer tape", "Materials"},
	{"gaff tape", "Materials"},
	{"spike tape", "Materials"},
	{"rental car", "Travel"},
	{"car rental", "Travel"},
	{"van rental", "Travel"},
	{"truck rental", "Travel"},
	{"venue rental", "Fees"},
	{"space rental", "Fees"},
	{"equipment rental", "Equipment"},
	{"dry cleaning", "Wardrobe"},
	{"sheet music", "Printing"},
	{"per diem", "Meals"},

	{"ticket", "Travel"},
	{"taxi", "Travel"},
	{"uber", "Travel"},
	{"lyft", "Travel"},
	{"parking", "Travel"},
	{"toll", "Travel"},
	{"mileage", "Travel"},
	{"airfare", "Travel"},
	{"flight", "Travel"},

	{"hotel", "Lodging"},
	{"motel", "Lodging"},
	{"airbnb", "Lodging"},
	{"lodging", "Lodging"},

	{"lunch", "Meals"},
	{"dinner", "Meals"},
	{"breakfast", "Meals"},
	{"coffee", "Meals"},
	{"catering", "Meals"},
	{"pizza", "Meals"},
	{"snack", "Meals"},
	{"meal", "Meals"},

	{"lumber", "Materials"},
	{"paint", "Materials"},
	{"fabric", "Materials"},
	{"tape", "Materials"},
	{"screw", "Materials"},
	{"glue", "Materials"},
	{"foam", "Materials"},

	{"batter", "Equipment"},
	{"cable", "Equipment"},
	{"bulb", "Equipment"},
	{"lamp", "Equipment"},
	{"adapter", "Equipment"},
	{"clamp", "Equipment"},
	{"microphone", "Equipment"},

	{"costume", "Wardrobe"},
	{"makeup", "Wardrobe"},
	{"wig", "Wardrobe"},
	{"alteration", "Wardrobe"},

	{"print", "Printing"},
	{"poster", "Printing"},
	{"flyer", "Printing"},
	{"program", "Printing"},
	{"copies", "Printing"},
	{"lamination", "Printing"},

	{"permit", "Fees"},
	{"royalt", "Fees"},
	{"insurance", "Fees"},
	{"deposit", "Fees"},
	{"fee", "Fees"},
	{"shipping", "Fees"},
	{"postage", "Fees"},
}
