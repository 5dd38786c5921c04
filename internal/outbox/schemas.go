package outbox

const healthRecordStoredSchema = `{
  "type": "object",
  "title": "HealthRecordStored",
  "properties": {
    "event_id": {"type": "string"},
    "user_id": {"type": "string"},
    "provider_type": {"type": "string", "enum": ["APPLE_HEALTH", "HEALTH_CONNECT", "GARMIN", "FITBIT"]},
    "schema_type": {"type": "string", "enum": ["daily", "body", "sleep"]},
    "timestamp": {"type": "string", "format": "date-time"},
    "date": {"type": "string", "format": "date"},
    "stored_at": {"type": "string", "format": "date-time"}
  },
  "required": ["event_id", "user_id", "provider_type", "schema_type", "timestamp", "date", "stored_at"],
  "additionalProperties": false
}`
