package layouts

const titleSchema = `{
	"type": "object",
	"properties": {
		"title": {"type": "string", "minLength": 1},
		"subtitle": {"type": "string"}
	},
	"required": ["title"]
}`

const headingBulletsSchema = `{
	"type": "object",
	"properties": {
		"title": {"type": "string", "minLength": 1},
		"description": {"type": "string"},
		"bullets": {
			"type": "array",
			"items": {
				"anyOf": [
					{"type": "string"},
					{"type": "object", "properties": {"title": {"type": "string"}, "description": {"type": "string"}}}
				]
			}
		},
		"image": {"type": ["object", "string"]}
	},
	"required": ["title"]
}`

const bulletListSchema = `{
	"type": "object",
	"properties": {
		"title": {"type": "string", "minLength": 1},
		"bullets": {"type": "array", "minItems": 1}
	},
	"required": ["title", "bullets"]
}`

const titleDescriptionSchema = `{
	"type": "object",
	"properties": {
		"title": {"type": "string", "minLength": 1},
		"description": {"type": "string"}
	},
	"required": ["title", "description"]
}`

const imageCaptionSchema = `{
	"type": "object",
	"properties": {
		"title": {"type": "string"},
		"caption": {"type": "string"},
		"image": {"type": ["object", "string"]},
		"imageUrl": {"type": "string"}
	},
	"anyOf": [{"required": ["image"]}, {"required": ["imageUrl"]}]
}`

const twoColumnSchema = `{
	"type": "object",
	"properties": {
		"title": {"type": "string", "minLength": 1},
		"left": {"type": ["object", "string"]},
		"right": {"type": ["object", "string"]}
	},
	"required": ["title", "left", "right"]
}`

const quoteSchema = `{
	"type": "object",
	"properties": {
		"quote": {"type": "string", "minLength": 1},
		"author": {"type": "string"}
	},
	"required": ["quote"]
}`

const tocSchema = `{
	"type": "object",
	"properties": {
		"title": {"type": "string"},
		"items": {"type": "array", "minItems": 1}
	},
	"required": ["items"]
}`

const generalTitleSchema = `{
	"type": "object",
	"properties": {
		"title": {"type": "string", "description": "Main title of the slide"},
		"subtitle": {"type": "string", "description": "Subtitle or tagline"},
		"background": {"type": "string", "description": "Background color or image URL"}
	},
	"required": ["title"]
}`

const generalContentSchema = `{
	"type": "object",
	"properties": {
		"title": {"type": "string", "description": "Slide title"},
		"content": {"type": "string", "description": "Main content text"},
		"bulletPoints": {"type": "array", "items": {"type": "string"}, "description": "List of bullet points"}
	},
	"required": ["title", "content"]
}`

const generalImageSchema = `{
	"type": "object",
	"properties": {
		"title": {"type": "string", "description": "Slide title"},
		"imageUrl": {"type": "string", "description": "URL of the image to display"},
		"caption": {"type": "string", "description": "Image caption"},
		"content": {"type": "string", "description": "Additional content text"}
	},
	"required": ["title", "imageUrl"]
}`

const modernTitleSchema = `{
	"type": "object",
	"properties": {
		"title": {"type": "string", "description": "Main title of the slide"},
		"subtitle": {"type": "string", "description": "Subtitle or tagline"},
		"accent": {"type": "string", "description": "Accent color"}
	},
	"required": ["title"]
}`
