package validators

import "go.mongodb.org/mongo-driver/bson"

var ResourceLockValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"_id",
			"date",
			"type",
			"resource_type",
			"resource_id",
			"created_at",
			"expires_at",
		},
		"additionalProperties": true,
		"properties": bson.M{
			"_id": bson.M{"bsonType": "string"},
			"date": bson.M{
				"bsonType": "string",
				"pattern":  `^\d{4}-\d{2}-\d{2}$`,
			},
			"type": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 64,
			},
			"resource_type": bson.M{
				"enum": []string{"employees", "vehicles"},
			},
			"resource_id": bson.M{
				"bsonType": "long",
				"minimum":  1,
			},
			"reserved_by": bson.M{"bsonType": "string"},
			"created_at":  bson.M{"bsonType": "date"},
			"expires_at":  bson.M{"bsonType": "date"},
		},
	},
}
