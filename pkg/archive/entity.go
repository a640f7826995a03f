package archive

import (
	"encoding/xml"
)

// EntityType is the archive's short type code.
type EntityType string

const (
	TypeFolder  EntityType = "SO"
	TypeAsset   EntityType = "IO"
	TypeContent EntityType = "CO"
)

// Entity is one node of the archive hierarchy.
type Entity struct {
	Ref    string
	Title  string
	Type   EntityType
	Parent string
}

func (e Entity) IsFolder() bool { return e.Type == TypeFolder }

func (e Entity) IsAsset() bool { return e.Type == TypeAsset }

type childrenResponse struct {
	XMLName  xml.Name `xml:"ChildrenResponse"`
	Children []child  `xml:"Children>Child"`
	Paging   paging   `xml:"Paging"`
}

type child struct {
	Ref   string `xml:"ref,attr"`
	Title string `xml:"title,attr"`
	Type  string `xml:"type,attr"`
	URL   string `xml:",chardata"`
}

type paging struct {
	Next         string `xml:"Next"`
	TotalResults int    `xml:"TotalResults"`
}

// structuralObject is the XIP body for folder creation.
type structuralObject struct {
	XMLName     xml.Name `xml:"http://preservica.com/XIP/v6.5 StructuralObject"`
	Ref         string   `xml:"Ref"`
	Title       string   `xml:"Title"`
	Description string   `xml:"Description"`
	SecurityTag string   `xml:"SecurityTag"`
	Parent      string   `xml:"Parent,omitempty"`
}

type entityResponse struct {
	XMLName xml.Name `xml:"EntityResponse"`
	Object  struct {
		Ref    string `xml:"Ref"`
		Title  string `xml:"Title"`
		Parent string `xml:"Parent"`
	} `xml:"StructuralObject"`
}

type uploadResponse struct {
	XMLName   xml.Name `xml:"UploadResponse"`
	Reference string   `xml:"Reference"`
	Location  string   `xml:"Location"`
}
