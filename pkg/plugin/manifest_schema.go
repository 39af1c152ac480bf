package plugin

// ManifestSchema is the JSON Schema for plugin manifest validation
const ManifestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id", "name", "version", "main", "tools"],
  "properties": {
    "id": {
      "type": "string",
      "pattern": "^[a-z0-9-]+$",
      "description": "Unique plugin identifier"
    },
    "name": {
      "type": "string",
      "minLength": 1
    },
    "version": {
      "type": "string",
      "pattern": "^\\d+\\.\\d+\\.\\d+$"
    },
    "description": {
      "type": "string"
    },
    "author": {
      "type": "string"
    },
    "main": {
      "type": "string",
      "minLength": 1,
      "description": "Plugin executable and arguments"
    },
    "permissions": {
      "type": "array",
      "items": {
        "type": "string",
        "enum": ["filesystem:read", "filesystem:write", "network:http", "process:spawn"]
      }
    },
    "credentials": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name": { "type": "string", "minLength": 1 },
          "required": { "type": "boolean" },
          "secret": { "type": "boolean" }
        }
      }
    },
    "tools": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name", "parameters"],
        "properties": {
          "name": { "type": "string", "minLength": 1 },
          "description": { "type": "string" },
          "parameters": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["name", "type"],
              "properties": {
                "name": { "type": "string" },
                "type": { "enum": ["string", "integer", "number", "boolean"] },
                "description": { "type": "string" },
                "required": { "type": "boolean" }
              }
            }
          }
        }
      }
    }
  }
}`
