package fingerprint

// geometricTypes are the entity types whose reals describe coordinates,
// directions or dimensions. With merge_geometry enabled they are hashed at the
// coarser geometry tolerance.
var geometricTypes = toSet(
	"IFCCARTESIANPOINT",
	"IFCCARTESIANPOINTLIST2D",
	"IFCCARTESIANPOINTLIST3D",
	"IFCDIRECTION",
	"IFCVECTOR",
	"IFCLINE",
	"IFCPOLYLINE",
	"IFCPOLYLOOP",
	"IFCINDEXEDPOLYCURVE",
	"IFCAXIS1PLACEMENT",
	"IFCAXIS2PLACEMENT2D",
	"IFCAXIS2PLACEMENT3D",
	"IFCLOCALPLACEMENT",
	"IFCCARTESIANTRANSFORMATIONOPERATOR2D",
	"IFCCARTESIANTRANSFORMATIONOPERATOR3D",
	"IFCCARTESIANTRANSFORMATIONOPERATOR3DNONUNIFORM",
	"IFCRECTANGLEPROFILEDEF",
	"IFCCIRCLEPROFILEDEF",
	"IFCARBITRARYCLOSEDPROFILEDEF",
	"IFCARBITRARYPROFILEDEFWITHVOIDS",
	"IFCEXTRUDEDAREASOLID",
	"IFCFACETEDBREP",
	"IFCCLOSEDSHELL",
	"IFCOPENSHELL",
	"IFCFACE",
	"IFCFACEBOUND",
	"IFCFACEOUTERBOUND",
	"IFCTRIANGULATEDFACESET",
	"IFCPLANE",
	"IFCHALFSPACESOLID",
	"IFCBOOLEANRESULT",
	"IFCBOOLEANCLIPPINGRESULT",
	"IFCMAPPEDITEM",
	"IFCREPRESENTATIONMAP",
)

func toSet(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// IsGeometric reports whether typ belongs to the geometric entity set.
func IsGeometric(typ string) bool {
	return geometricTypes[typ]
}
