package weather

// weatherEmoji maps JMA weather codes onto glyph sequences for the day
// cells. Sequences keep the feed's temporal structure: "/" separates a
// temporary condition, "⇀" a later change.
var weatherEmoji = map[string][]string{
	"100": {"☀️"},
	"101": {"☀️", "☁️"},
	"102": {"☀️", "/", "🌧️"},
	"103": {"☀️", "🌧️"},
	"104": {"☀️", "/", "❄️"},
	"105": {"☀️", "❄️"},
	"106": {"☀️", "/", "🌧️❄️"},
	"107": {"☀️", "🌧️❄️"},
	"108": {"☀️", "/", "⛈️"},
	"110": {"☀️", "⇀", "☁️"},
	"111": {"☀️", "⇀", "☁️"},
	"112": {"☀️", "⇀", "🌧️"},
	"113": {"☀️", "⇀", "🌧️"},
	"114": {"☀️", "⇀", "🌧️"},
	"115": {"☀️", "⇀", "❄️"},
	"116": {"☀️", "⇀", "❄️"},
	"117": {"☀️", "⇀", "❄️"},
	"118": {"☀️", "⇀", "🌧️❄️"},
	"119": {"☀️", "⇀", "⛈️"},
	"120": {"☀️", "🌅", "/", "🌧️"},
	"121": {"☀️", "🌅", "/", "🌧️"},
	"122": {"☀️", "🌇", "/", "🌧️"},
	"123": {"☀️", "⛰️", "⛈️"},
	"124": {"☀️", "⛰️", "❄️"},
	"125": {"☀️", "⇀", "⛈️"},
	"126": {"☀️", "⇀", "🌧️"},
	"127": {"☀️", "⇀", "🌧️"},
	"128": {"☀️", "🌙", "🌧️"},
	"129": {"☀️", "🌙", "🌧️"},
	"130": {"🌫️", "⇀", "☀️"},
	"131": {"☀️", "🌅", "🌫️"},
	"132": {"☀️", "🌅🌇", "☁️"},
	"140": {"☀️", "⛈️"},
	"160": {"☀️", "/", "❄️🌧️"},
	"170": {"☀️", "❄️🌧️"},
	"181": {"☀️", "⇀", "❄️🌧️"},
	"200": {"☁️"},
	"201": {"☁️", "☀️"},
	"202": {"☁️", "/", "🌧️"},
	"203": {"☁️", "🌧️"},
	"204": {"☁️", "/", "❄️"},
	"205": {"☁️", "❄️"},
	"206": {"☁️", "/", "🌧️❄️"},
	"207": {"☁️", "🌧️❄️"},
	"208": {"☁️", "/", "⛈️"},
	"209": {"🌫️"},
	"210": {"☁️", "⇀", "☀️"},
	"211": {"☁️", "⇀", "☀️"},
	"212": {"☁️", "⇀", "/", "🌧️"},
	"213": {"☁️", "⇀", "🌧️"},
	"214": {"☁️", "⇀", "🌧️"},
	"215": {"☁️", "⇀", "/", "❄️"},
	"216": {"☁️", "⇀", "❄️"},
	"217": {"☁️", "⇀", "❄️"},
	"218": {"☁️", "⇀", "🌧️❄️"},
	"219": {"☁️", "⇀", "⛈️"},
	"220": {"☁️", "🌅🌇", "/", "🌧️"},
	"221": {"☁️", "🌅", "/", "🌧️"},
	"222": {"☁️", "🌇", "/", "🌧️"},
	"223": {"☁️", "☀️"},
	"224": {"☁️", "⇀", "🌧️"},
	"225": {"☁️", "⇀", "🌧️"},
	"226": {"☁️", "🌙", "🌧️"},
	"227": {"☁️", "🌙", "🌧️"},
	"228": {"☁️", "⇀", "❄️"},
	"229": {"☁️", "⇀", "❄️"},
	"230": {"☁️", "🌙", "❄️"},
	"231": {"☁️", "🌊", "🌫️"},
	"240": {"☁️", "⛈️"},
	"250": {"☁️", "⛈️❄️"},
	"260": {"☁️", "/", "❄️🌧️"},
	"270": {"☁️", "❄️🌧️"},
	"281": {"☁️", "⇀", "❄️🌧️"},
	"300": {"🌧️"},
	"301": {"🌧️", "☀️"},
	"302": {"🌧️", "☔"},
	"303": {"🌧️", "❄️"},
	"304": {"🌧️❄️"},
	"306": {"⛈️"},
	"307": {"⛈️", "💨"},
	"308": {"🌧️", "🌀"},
	"309": {"🌧️", "/", "❄️"},
	"311": {"🌧️", "⇀", "☀️"},
	"313": {"🌧️", "⇀", "☁️"},
	"314": {"🌧️", "⇀", "❄️"},
	"315": {"🌧️", "⇀", "❄️"},
	"316": {"🌧️❄️", "⇀", "☀️"},
	"317": {"🌧️❄️", "⇀", "☁️"},
	"320": {"🌧️", "🌅", "⇀", "☀️"},
	"321": {"🌧️", "🌅", "⇀", "☁️"},
	"322": {"🌧️", "🌅🌇", "/", "❄️"},
	"323": {"🌧️", "⇀", "☀️"},
	"324": {"🌧️", "⇀", "☀️"},
	"325": {"🌧️", "🌙", "☀️"},
	"326": {"🌧️", "⇀", "❄️"},
	"327": {"🌧️", "🌙", "❄️"},
	"328": {"🌧️", "⚡"},
	"329": {"🌧️", "/", "🌨️"},
	"340": {"❄️🌧️"},
	"350": {"⛈️"},
	"361": {"❄️🌧️", "⇀", "☀️"},
	"371": {"❄️🌧️", "⇀", "☁️"},
	"400": {"❄️"},
	"401": {"❄️", "☀️"},
	"402": {"❄️", "☔"},
	"403": {"❄️", "🌧️"},
	"405": {"🌨️"},
	"406": {"🌨️", "💨"},
	"407": {"🌨️", "🌀"},
	"409": {"❄️", "/", "🌧️"},
	"411": {"❄️", "⇀", "☀️"},
	"413": {"❄️", "⇀", "☁️"},
	"414": {"❄️", "⇀", "🌧️"},
	"420": {"❄️", "🌅", "⇀", "☀️"},
	"421": {"❄️", "🌅", "⇀", "☁️"},
	"422": {"❄️", "⇀", "🌧️"},
	"423": {"❄️", "⇀", "🌧️"},
	"424": {"❄️", "🌙", "🌧️"},
	"425": {"❄️", "⚡"},
	"426": {"❄️", "⇀", "🌨️"},
	"427": {"❄️", "/", "🌨️"},
	"450": {"⛈️❄️"},
}

// EmojiForCode returns the glyph sequence for a JMA weather code. Unknown
// codes render as a single question mark.
func EmojiForCode(code string) []string {
	if seq, ok := weatherEmoji[code]; ok {
		return seq
	}
	return []string{"❓"}
}
