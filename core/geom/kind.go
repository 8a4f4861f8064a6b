package geom

// itemKind is the closed set of representation item kinds the resolver
// understands. Dispatch is by IFC type name.
type itemKind int

const (
	kindUnknown itemKind = iota
	kindExtrusion
	kindBrep
	kindSurfaceModel
	kindTriangulatedFaceSet
	kindPolygonalFaceSet
	kindBoolean
	kindMapped
	kindHalfSpace
	kindPolygonalHalfSpace
)

var itemKinds = map[string]itemKind{
	"IFCEXTRUDEDAREASOLID":         kindExtrusion,
	"IFCFACETEDBREP":               kindBrep,
	"IFCFACETEDBREPWITHVOIDS":      kindBrep,
	"IFCFACEBASEDSURFACEMODEL":     kindSurfaceModel,
	"IFCSHELLBASEDSURFACEMODEL":    kindSurfaceModel,
	"IFCTRIANGULATEDFACESET":       kindTriangulatedFaceSet,
	"IFCPOLYGONALFACESET":          kindPolygonalFaceSet,
	"IFCBOOLEANRESULT":             kindBoolean,
	"IFCBOOLEANCLIPPINGRESULT":     kindBoolean,
	"IFCMAPPEDITEM":                kindMapped,
	"IFCHALFSPACESOLID":            kindHalfSpace,
	"IFCBOXEDHALFSPACE":            kindHalfSpace,
	"IFCPOLYGONALBOUNDEDHALFSPACE": kindPolygonalHalfSpace,
}

func kindOf(typ string) itemKind {
	return itemKinds[typ]
}

func (k itemKind) String() string {
	switch k {
	case kindExtrusion:
		return "extrusion"
	case kindBrep:
		return "brep"
	case kindSurfaceModel:
		return "surface-model"
	case kindTriangulatedFaceSet:
		return "triangulated-face-set"
	case kindPolygonalFaceSet:
		return "polygonal-face-set"
	case kindBoolean:
		return "boolean"
	case kindMapped:
		return "mapped"
	case kindHalfSpace:
		return "half-space"
	case kindPolygonalHalfSpace:
		return "polygonal-half-space"
	}
	return "unknown"
}
