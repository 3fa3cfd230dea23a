package gateway

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

const messageSchemaJSON = `{
  "type": "object",
  "properties": {
    "message": {"type": "string"},
    "success": {"type": "boolean"}
  }
}`

const roadmapSchemaJSON = `{
  "type": "object",
  "required": ["nodes"],
  "properties": {
    "nodes": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["label"],
        "properties": {
          "id": {"type": ["string", "integer"]},
          "label": {"type": "string", "minLength": 1}
        }
      }
    }
  }
}`

const quizSchemaJSON = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["question", "options", "correct_answer"],
    "properties": {
      "question": {"type": "string", "minLength": 1},
      "options": {"type": "array", "minItems": 1, "items": {"type": "string"}},
      "correct_answer": {"type": "integer", "minimum": 0}
    }
  }
}`

const linkDef = `{
  "type": "object",
  "required": ["title", "url"],
  "properties": {
    "title": {"type": "string"},
    "url": {"type": "string", "minLength": 1},
    "thumbnail": {"type": ["string", "null"]},
    "channel": {"type": ["string", "null"]},
    "type": {"type": ["string", "null"]}
  }
}`

var resourcesSchemaJSON = fmt.Sprintf(`{
  "type": "object",
  "properties": {
    "videos":   {"type": ["array", "null"], "items": %[1]s},
    "articles": {"type": ["array", "null"], "items": %[1]s},
    "pdfs":     {"type": ["array", "null"], "items": %[1]s},
    "trust_score":  {"type": ["number", "null"]},
    "review_count": {"type": ["integer", "null"]}
  }
}`, linkDef)

const chatSchemaJSON = `{
  "type": "object",
  "required": ["reply"],
  "properties": {"reply": {"type": "string"}}
}`

const leaderboardSchemaJSON = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["score"],
    "properties": {
      "user_id": {"type": ["string", "null"]},
      "full_name": {"type": ["string", "null"]},
      "score": {"type": "number"}
    }
  }
}`

const mySquadSchemaJSON = `{
  "type": "object",
  "properties": {
    "details": {
      "type": ["object", "null"],
      "required": ["name"],
      "properties": {
        "name": {"type": "string"},
        "total_score": {"type": ["number", "null"]},
        "join_code": {"type": ["string", "null"]}
      }
    },
    "members": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "properties": {
          "full_name": {"type": ["string", "null"]},
          "score": {"type": ["number", "null"]}
        }
      }
    }
  }
}`

const squadRankingSchemaJSON = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["name"],
    "properties": {
      "id": {"type": ["string", "integer"]},
      "name": {"type": "string"},
      "total_score": {"type": ["number", "null"]}
    }
  }
}`

const adminStatsSchemaJSON = `{
  "type": "object",
  "required": ["users", "roadmaps"],
  "properties": {
    "users": {"type": "integer", "minimum": 0},
    "roadmaps": {"type": "integer", "minimum": 0},
    "satisfaction": {"type": ["number", "null"]}
  }
}`

const adminRoadmapsSchemaJSON = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["topic"],
    "properties": {
      "id": {"type": ["string", "integer"]},
      "topic": {"type": "string"},
      "created_at": {"type": ["string", "null"]}
    }
  }
}`

const adminFeedbackSchemaJSON = `{
  "type": "array",
  "items": {
    "type": "object",
    "properties": {
      "topic": {"type": ["string", "null"]},
      "node_label": {"type": ["string", "null"]},
      "feedback_text": {"type": ["string", "null"]},
      "sentiment_score": {"type": ["number", "null"]}
    }
  }
}`

var (
	messageSchema       = mustSchema("message", messageSchemaJSON)
	roadmapSchema       = mustSchema("roadmap", roadmapSchemaJSON)
	quizSchema          = mustSchema("quiz", quizSchemaJSON)
	resourcesSchema     = mustSchema("resources", resourcesSchemaJSON)
	chatSchema          = mustSchema("chat", chatSchemaJSON)
	leaderboardSchema   = mustSchema("leaderboard", leaderboardSchemaJSON)
	mySquadSchema       = mustSchema("my_squad", mySquadSchemaJSON)
	squadRankingSchema  = mustSchema("squad_leaderboard", squadRankingSchemaJSON)
	adminStatsSchema    = mustSchema("admin_stats", adminStatsSchemaJSON)
	adminRoadmapsSchema = mustSchema("admin_roadmaps", adminRoadmapsSchemaJSON)
	adminFeedbackSchema = mustSchema("admin_feedback", adminFeedbackSchemaJSON)
)

func mustSchema(name, src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("gateway: compile %s schema: %v", name, err))
	}
	return s
}
