package prompt

import (
	"github.com/lukas-andre/decollage-cl-sub000/internal/models"
)

// Style is a named design style. Each environment has its own scaffold
// template; scaffolds are executed against Data.
type Style struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	Interior   string `json:"-"`
	Exterior   string `json:"-"`
	Commercial string `json:"-"`
}

// Scaffold returns the style's template for an environment.
func (s Style) Scaffold(env models.Environment) string {
	switch env {
	case models.EnvironmentExterior:
		return s.Exterior
	case models.EnvironmentCommercial:
		return s.Commercial
	default:
		return s.Interior
	}
}

// Generic scaffolds used when only free-text instructions are given.
var genericScaffolds = map[models.Environment]string{
	models.EnvironmentInterior: "Redesign this {{.RoomType}} as a professionally staged interior. " +
		"Keep realistic lighting, correct scale and natural materials.",
	models.EnvironmentExterior: "Redesign this {{.RoomType}} as a professionally landscaped exterior. " +
		"Keep realistic daylight, plants suited to the climate and durable outdoor materials.",
	models.EnvironmentCommercial: "Redesign this {{.RoomType}} as a professionally fitted commercial space. " +
		"Keep clear circulation, brand-neutral finishes and lighting suited to customers.",
}

// DefaultStyles is the built-in style catalog.
func DefaultStyles() []Style {
	return []Style{
		{
			ID:          "modern",
			Name:        "Modern",
			Description: "Clean lines, neutral palette, sleek furniture",
			Interior: "Stage this {{.RoomType}} in a modern style: clean lines, a neutral palette with bold accents, " +
				"sleek low-profile furniture, polished surfaces and statement lighting.",
			Exterior: "Restyle this {{.RoomType}} in a modern style: geometric planters, concrete and timber decking, " +
				"minimal outdoor furniture and warm linear lighting.",
			Commercial: "Fit out this {{.RoomType}} in a modern style: open layout, neutral finishes, " +
				"sleek fixtures and bright even lighting.",
		},
		{
			ID:          "minimalist",
			Name:        "Minimalist",
			Description: "Few pieces, open space, calm tones",
			Interior: "Stage this {{.RoomType}} in a minimalist style: only essential furniture, " +
				"uncluttered surfaces, white and warm grey tones and soft natural light.",
			Exterior: "Restyle this {{.RoomType}} in a minimalist style: gravel and stone, a few sculptural plants " +
				"and simple seating.",
			Commercial: "Fit out this {{.RoomType}} in a minimalist style: sparse displays, hidden storage " +
				"and a calm monochrome palette.",
		},
		{
			ID:          "scandinavian",
			Name:        "Scandinavian",
			Description: "Light woods, cozy textiles, functional design",
			Interior: "Stage this {{.RoomType}} in a Scandinavian style: light oak furniture, white walls, " +
				"wool and linen textiles, green plants and cozy functional pieces.",
			Exterior: "Restyle this {{.RoomType}} in a Scandinavian style: light timber, simple wooden benches, " +
				"soft grasses and lantern lighting.",
			Commercial: "Fit out this {{.RoomType}} in a Scandinavian style: pale wood fixtures, " +
				"functional shelving and warm pendant lights.",
		},
		{
			ID:          "industrial",
			Name:        "Industrial",
			Description: "Exposed materials, metal and leather",
			Interior: "Stage this {{.RoomType}} in an industrial style: exposed brick and concrete, black metal frames, " +
				"leather seating, reclaimed wood and Edison bulb lighting.",
			Exterior: "Restyle this {{.RoomType}} in an industrial style: corten steel planters, concrete pavers " +
				"and metal furniture.",
			Commercial: "Fit out this {{.RoomType}} in an industrial style: open ceilings, steel shelving, " +
				"polished concrete floors and track lighting.",
		},
		{
			ID:          "bohemian",
			Name:        "Bohemian",
			Description: "Layered patterns, rattan and plants",
			Interior: "Stage this {{.RoomType}} in a bohemian style: layered rugs and patterned textiles, " +
				"rattan and wicker furniture, abundant plants and warm earthy colors.",
			Exterior: "Restyle this {{.RoomType}} in a bohemian style: string lights, floor cushions, " +
				"hanging planters and colorful textiles.",
			Commercial: "Fit out this {{.RoomType}} in a bohemian style: eclectic displays, woven baskets " +
				"and warm ambient light.",
		},
		{
			ID:          "mid_century",
			Name:        "Mid-Century Modern",
			Description: "Walnut, tapered legs, organic shapes",
			Interior: "Stage this {{.RoomType}} in a mid-century modern style: walnut furniture with tapered legs, " +
				"organic curves, mustard and teal accents and globe lighting.",
			Exterior: "Restyle this {{.RoomType}} in a mid-century modern style: breeze blocks, low planters " +
				"and retro lounge chairs.",
			Commercial: "Fit out this {{.RoomType}} in a mid-century modern style: teak counters, " +
				"sculptural lighting and retro signage.",
		},
		{
			ID:          "coastal",
			Name:        "Coastal",
			Description: "Airy blues, whites and natural fibers",
			Interior: "Stage this {{.RoomType}} in a coastal style: white and soft blue palette, slipcovered sofas, " +
				"jute rugs, driftwood accents and airy curtains.",
			Exterior: "Restyle this {{.RoomType}} in a coastal style: weathered wood, ornamental grasses " +
				"and white outdoor furniture.",
			Commercial: "Fit out this {{.RoomType}} in a coastal style: whitewashed wood, rope details " +
				"and bright natural light.",
		},
		{
			ID:          "rustic",
			Name:        "Rustic",
			Description: "Natural wood, stone and warm textures",
			Interior: "Stage this {{.RoomType}} in a rustic style: rough-hewn wood beams, stone accents, " +
				"warm textiles and handcrafted furniture.",
			Exterior: "Restyle this {{.RoomType}} in a rustic style: stone paths, timber pergola " +
				"and native plants.",
			Commercial: "Fit out this {{.RoomType}} in a rustic style: reclaimed wood counters, " +
				"iron fixtures and warm lighting.",
		},
		{
			ID:          "japandi",
			Name:        "Japandi",
			Description: "Japanese calm meets Scandinavian warmth",
			Interior: "Stage this {{.RoomType}} in a Japandi style: low natural-wood furniture, paper lamps, " +
				"muted earth tones, linen textiles and a few ceramic objects.",
			Exterior: "Restyle this {{.RoomType}} in a Japandi style: raked gravel, bamboo screens, " +
				"a small maple and low timber benches.",
			Commercial: "Fit out this {{.RoomType}} in a Japandi style: natural wood displays, " +
				"soft diffused light and generous empty space.",
		},
		{
			ID:          "luxury",
			Name:        "Luxury",
			Description: "Marble, velvet and brass",
			Interior: "Stage this {{.RoomType}} in a luxury style: marble surfaces, velvet upholstery, " +
				"brass details, layered lighting and curated art.",
			Exterior: "Restyle this {{.RoomType}} in a luxury style: travertine terrace, sculpted hedges, " +
				"a fire feature and designer outdoor lounges.",
			Commercial: "Fit out this {{.RoomType}} in a luxury style: marble counters, brass fixtures " +
				"and dramatic accent lighting.",
		},
	}
}
