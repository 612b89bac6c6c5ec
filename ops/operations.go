package ops

// Operation kinds.
const (
	KindRotate         = "rotate"
	KindSplit          = "split"
	KindRemovePages    = "removepages"
	KindWatermark      = "watermark"
	KindImageWatermark = "imagewatermark"
	KindAddAnnotations = "addannotations"
	KindAddPassword    = "addpassword"
	KindRemovePassword = "removepassword"
)

// Defaults applied by Normalize when a field is absent.
const (
	DefaultOpacity         = 0.5
	DefaultWatermarkWidth  = 150.0
	DefaultWatermarkHeight = 150.0

	DefaultCommentFontSize = 12.0
	DefaultCommentWidth    = 150.0
	DefaultCommentHeight   = 50.0
)

// Operation is one normalized editing step. Kind is lowercase and non-empty.
type Operation interface {
	Kind() string
}

// Color is an RGB triple with components in 0..1.
type Color [3]float64

var (
	Black = Color{0, 0, 0}
	White = Color{1, 1, 1}
)

type Rotation struct {
	Page    int `json:"page"`
	Degrees int `json:"degrees"`
}

// Rotate sets an absolute rotation on individual pages.
type Rotate struct {
	Rotations []Rotation `json:"rotations"`
}

func (Rotate) Kind() string { return KindRotate }

// PageRange is a 1-based inclusive range.
type PageRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Split narrows the document to a page range. Ranges wins over SplitPoints
// when both are present.
type Split struct {
	Ranges      []PageRange `json:"ranges,omitempty"`
	SplitPoints []int       `json:"splitPoints,omitempty"`
}

func (Split) Kind() string { return KindSplit }

// RemovePages deletes 1-based page numbers.
type RemovePages struct {
	PagesToRemove []int `json:"pagesToRemove"`
}

func (RemovePages) Kind() string { return KindRemovePages }

// Watermark stamps text inside a faint box on every page.
type Watermark struct {
	WatermarkText string   `json:"watermarkText"`
	Opacity       float64  `json:"opacity"`
	Position      Position `json:"position"`
	Width         float64  `json:"width"`
	Height        float64  `json:"height"`
}

func (Watermark) Kind() string { return KindWatermark }

// ImageWatermark stamps a PNG or JPEG image on every page. ImageBuffer is
// base64 in JSON and may be supplied out of band by the executor.
type ImageWatermark struct {
	ImageBuffer []byte   `json:"imageBuffer,omitempty"`
	Opacity     float64  `json:"opacity"`
	Position    Position `json:"position"`
	Width       float64  `json:"width"`
	Height      float64  `json:"height"`
}

func (ImageWatermark) Kind() string { return KindImageWatermark }

type Comment struct {
	Page      int     `json:"page"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Content   string  `json:"content"`
	TextColor Color   `json:"textColor"`
	BgColor   Color   `json:"bgColor"`
	FontSize  float64 `json:"fontSize"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
}

// AddAnnotations draws boxed comments onto pages.
type AddAnnotations struct {
	Comments []Comment `json:"comments"`
}

func (AddAnnotations) Kind() string { return KindAddAnnotations }

type PasswordOptions struct {
	// UserPassword controls whether a password is required to open the
	// document. Nil means true.
	UserPassword *bool `json:"userPassword,omitempty"`
	// OwnerPassword makes the owner password equal to the user password
	// instead of a random one.
	OwnerPassword bool `json:"ownerPassword"`
}

// RequiresUserPassword reports the effective userPassword flag.
func (o PasswordOptions) RequiresUserPassword() bool {
	return o.UserPassword == nil || *o.UserPassword
}

// AddPassword encrypts the document on save.
type AddPassword struct {
	Password string          `json:"password"`
	Options  PasswordOptions `json:"options"`
}

func (AddPassword) Kind() string { return KindAddPassword }

// RemovePassword reopens an encrypted working document and drops its
// encryption.
type RemovePassword struct {
	Password string `json:"password"`
}

func (RemovePassword) Kind() string { return KindRemovePassword }

// Unsupported carries a kind no handler is known for.
type Unsupported struct {
	Name string
}

func (u Unsupported) Kind() string { return u.Name }
