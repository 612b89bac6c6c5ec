package generator

// ItemKind tags an Item.
type ItemKind string

const (
	KindText     ItemKind = "text"
	KindImage    ItemKind = "image"
	KindTable    ItemKind = "table"
	KindMarkdown ItemKind = "markdown"
	KindHTML     ItemKind = "html"
)

// Item is one unit of content. Which fields apply depends on Kind.
type Item struct {
	Kind     ItemKind   `json:"type"`
	Title    string     `json:"title,omitempty"`
	Text     string     `json:"content,omitempty"`
	Image    []byte     `json:"image,omitempty"`
	Headers  []string   `json:"tableHeaders,omitempty"`
	Rows     [][]string `json:"tableData,omitempty"`
	Source   string     `json:"source,omitempty"`
	FontSize float64    `json:"fontSize,omitempty"`
}

func Text(title, body string) Item {
	return Item{Kind: KindText, Title: title, Text: body}
}

func Image(data []byte) Item {
	return Item{Kind: KindImage, Image: data}
}

func Table(title string, headers []string, rows [][]string) Item {
	return Item{Kind: KindTable, Title: title, Headers: headers, Rows: rows}
}

func Markdown(source string) Item {
	return Item{Kind: KindMarkdown, Source: source}
}

func HTML(source string) Item {
	return Item{Kind: KindHTML, Source: source}
}
