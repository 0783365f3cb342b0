package intent

// productTypes maps words naming a product to its catalog type.
var productTypes = map[string]string{
	"lamp":      "lamp",
	"lamps":     "lamp",
	"light":     "lamp",
	"lights":    "lamp",
	"sofa":      "sofa",
	"sofas":     "sofa",
	"couch":     "sofa",
	"couches":   "sofa",
	"vase":      "vase",
	"vases":     "vase",
	"painting":  "painting",
	"paintings": "painting",
	"artwork":   "painting",
	"artworks":  "painting",
	"picture":   "painting",
	"pictures":  "painting",
	"canvas":    "painting",
	"canvases":  "painting",
}

// exactOnlyTypes are type words too close to everyday words ("night", "right") to
// match with a typo.
var exactOnlyTypes = map[string]struct{}{
	"light":  {},
	"lights": {},
}

// commonWords are everyday words one edit away from a type word. They never count
// as a misspelled type.
var commonWords = map[string]struct{}{
	"case": {}, "base": {}, "vast": {}, "vale": {}, "have": {}, "save": {}, "same": {},
	"cases": {}, "bases": {}, "oases": {},
	"soft": {}, "soda": {}, "sort": {},
	"camp": {}, "damp": {}, "ramp": {}, "lame": {}, "lamb": {}, "limp": {}, "lump": {},
	"touch": {}, "pouch": {}, "cough": {}, "vouch": {}, "coach": {}, "ouch": {}, "conch": {},
	"pictured": {}, "painted": {}, "paints": {}, "pointing": {}, "fainting": {}, "panting": {},
}

// styles maps style words to catalog style tags.
var styles = map[string]string{
	"modern":       "modern",
	"minimalist":   "minimalist",
	"minimal":      "minimalist",
	"scandinavian": "scandinavian",
	"scandi":       "scandinavian",
	"nordic":       "scandinavian",
	"industrial":   "industrial",
	"boho":         "boho",
	"bohemian":     "boho",
	"vintage":      "vintage",
	"retro":        "vintage",
	"classic":      "classic",
	"traditional":  "classic",
	"rustic":       "rustic",
	"farmhouse":    "rustic",
	"contemporary": "contemporary",
	"mid-century":  "mid-century",
	"midcentury":   "mid-century",
}

// requestPhrases signal that the user is asking to see products.
var requestPhrases = []string{
	"show", "find", "recommend", "suggest", "looking for", "look for", "do you have",
	"want", "need", "search",
}

// similarPhrases ask for more items like the ones already shown.
var similarPhrases = []string{
	"similar", "like this", "like that", "like these", "like those", "more like",
	"something like", "same style", "same kind",
}

var ordinals = map[string]int{
	"first":  1,
	"1st":    1,
	"second": 2,
	"2nd":    2,
	"third":  3,
	"3rd":    3,
	"fourth": 4,
	"4th":    4,
	"fifth":  5,
	"5th":    5,
	"last":   SelectLast,
}

// greetingWords may make up a greeting; at least one must be in greetingHeads.
var greetingWords = map[string]struct{}{
	"hi": {}, "hello": {}, "hey": {}, "hiya": {}, "howdy": {}, "yo": {}, "greetings": {},
	"good": {}, "morning": {}, "afternoon": {}, "evening": {}, "there": {}, "everyone": {},
	"all": {}, "again": {},
}

var greetingHeads = map[string]struct{}{
	"hi": {}, "hello": {}, "hey": {}, "hiya": {}, "howdy": {}, "yo": {}, "greetings": {},
	"morning": {}, "afternoon": {}, "evening": {},
}
