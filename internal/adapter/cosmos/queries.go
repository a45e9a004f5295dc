package cosmos

// QueryCharacterLimit is the platform ceiling on the serialized length of one
// Cosmos DB query, parameters included. Geometries are subdivided upstream so
// that geometry JSON plus query template always stays under it.
const QueryCharacterLimit = 200000

// The three match levels share one spatial predicate; only the projected
// columns differ. The candidate document's geometry is always
// features[0].geometry and the flood geometry binds to @geometry.

const areaIntersectsQuery = `select c.id, c.areaCode, c.features
                from c
                join (SELECT VALUE ST_INTERSECTS(c.features[0].geometry, @geometry)) intersects
                where intersects = true`

const districtIntersectsQuery = `select c.id, c.district, c.features
              from c
                       join (SELECT VALUE ST_INTERSECTS(@geometry, c.features[0].geometry)) intersects
           where intersects = true`

const shardMapQuery = `SELECT * FROM c`

// AreaQueryTemplate returns the area-level query text. Its length feeds the
// subdivision gate: a geometry only needs splitting when geometry JSON plus
// this template would exceed QueryCharacterLimit.
func AreaQueryTemplate() string {
	return areaIntersectsQuery
}
