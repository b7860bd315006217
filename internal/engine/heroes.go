package engine

// heroes is the roster offered to draft pages. Submitted payloads are not
// checked against it.
var heroes = [...]string{
	"adagio",
	"alpha",
	"ardan",
	"baptiste",
	"baron",
	"blackfeather",
	"catherine",
	"celeste",
	"churnwalker",
	"flicker",
	"fortress",
	"glaive",
	"grace",
	"grumpjaw",
	"gwen",
	"idris",
	"joule",
	"kestrel",
	"koshka",
	"krul",
	"lance",
	"lorelai",
	"lyra",
	"ozo",
	"petal",
	"phinn",
	"reim",
	"reza",
	"ringo",
	"rona",
	"samuel",
	"saw",
	"skaarf",
	"skye",
	"taka",
	"tony",
	"varya",
	"vox",
}

// Heroes returns a copy of the roster in display order.
func Heroes() []string {
	out := make([]string, len(heroes))
	copy(out, heroes[:])
	return out
}
