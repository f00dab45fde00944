package bom

import (
	"io"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/CZERTAINLY/Vetter/internal/model"

	cdx "github.com/CycloneDX/cyclonedx-go"
	"github.com/google/uuid"
)

var version string

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" {
		version = "unknown"
	} else {
		version = info.Main.Version
	}
}

// Version returns the version of the main module as recorded by the go build
func Version() string {
	return version
}

const (
	PropertyLine    = "vetter:line"
	PropertyRule    = "vetter:rule"
	PropertyRules   = "vetter:rules"
	PropertyVersion = "vetter:version"
)

// Builder is a builder pattern for a CycloneDX BOM structure
type Builder struct {
	components      []cdx.Component
	vulnerabilities []cdx.Vulnerability
	properties      []cdx.Property
	refs            map[string]struct{}
}

func NewBuilder() *Builder {
	return &Builder{
		// those MUST be initialized as cyclone-dx JSON schema do not allow items to be null
		components:      []cdx.Component{},
		vulnerabilities: []cdx.Vulnerability{},
		properties:      []cdx.Property{},
		refs:            make(map[string]struct{}),
	}
}

func (b *Builder) AppendProperties(properties ...cdx.Property) *Builder {
	b.properties = append(b.properties, properties...)
	return b
}

// AppendFiles adds a file component per path, a path already present is skipped
func (b *Builder) AppendFiles(paths ...string) *Builder {
	for _, path := range paths {
		ref := fileRef(path)
		if _, ok := b.refs[ref]; ok {
			continue
		}
		b.refs[ref] = struct{}{}
		b.components = append(b.components, cdx.Component{
			BOMRef: ref,
			Type:   cdx.ComponentTypeFile,
			Name:   path,
		})
	}
	return b
}

// AppendFindings adds a vulnerability per finding affecting the component of
// its file
func (b *Builder) AppendFindings(findings ...model.Finding) *Builder {
	for _, f := range findings {
		b.AppendFiles(f.Path)
		b.vulnerabilities = append(b.vulnerabilities, cdx.Vulnerability{
			BOMRef:      "finding-" + strconv.Itoa(len(b.vulnerabilities)+1),
			ID:          f.RuleID,
			Description: f.Message,
			Source:      &cdx.Source{Name: "vetter"},
			Ratings: &[]cdx.VulnerabilityRating{
				{
					Severity: severity(f.Severity),
					Method:   cdx.ScoringMethodOther,
				},
			},
			Affects: &[]cdx.Affects{
				{Ref: fileRef(f.Path)},
			},
			Properties: &[]cdx.Property{
				{Name: PropertyRule, Value: f.RuleID},
				{Name: PropertyLine, Value: strconv.Itoa(f.Line)},
			},
		})
	}
	return b
}

// AppendResult adds every scanned file and every finding of res
func (b *Builder) AppendResult(res model.Result) *Builder {
	return b.AppendFiles(res.Files...).AppendFindings(res.Findings...)
}

// BOM returns a cdx.BOM based on a data inside the Builder
func (b *Builder) BOM() cdx.BOM {
	bom := cdx.BOM{
		JSONSchema:   "https://cyclonedx.org/schema/bom-1.6.schema.json",
		BOMFormat:    "CycloneDX",
		SpecVersion:  cdx.SpecVersion1_6,
		SerialNumber: "urn:uuid:" + uuid.New().String(),
		Version:      1,
		Metadata: &cdx.Metadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Lifecycles: &[]cdx.Lifecycle{
				{
					Phase: cdx.LifecyclePhaseBuild,
				},
			},
			// This can't be not nil otherwise this error will happen
			// json: error calling MarshalJSON for type *cyclonedx.ToolsChoice: unexpected end of JSON input
			Component: &cdx.Component{
				Type:    cdx.ComponentTypeApplication,
				Name:    "Vetter",
				Version: version,
				Manufacturer: &cdx.OrganizationalEntity{
					Name:    "CZERTAINLY",
					Address: &cdx.PostalAddress{},
					URL: &[]string{
						"https://www.czertainly.com",
					},
				},
			},
		},
		Components:      &b.components,
		Vulnerabilities: &b.vulnerabilities,
		Properties:      &b.properties,
	}
	return bom
}

// AsJSON encode the BOM into JSON format
func (b *Builder) AsJSON(w io.Writer) error {
	bom := b.BOM()
	return cdx.NewBOMEncoder(w, cdx.BOMFileFormatJSON).SetPretty(true).Encode(&bom)
}

func fileRef(path string) string {
	return "file:" + path
}

func severity(s model.Severity) cdx.Severity {
	switch s {
	case model.SeverityError:
		return cdx.SeverityHigh
	case model.SeverityWarning:
		return cdx.SeverityMedium
	case model.SeverityInfo:
		return cdx.SeverityInfo
	default:
		return cdx.SeverityUnknown
	}
}
