/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package gateway

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type tableAdapter struct {
	client *dynamodb.Client
}

func toAttrMap(m map[string]string) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(m))
	for k, v := range m {
		out[k] = &types.AttributeValueMemberS{Value: v}
	}
	return out
}

func fromAttrMap(m map[string]types.AttributeValue) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := v.(*types.AttributeValueMemberS); ok {
			out[k] = s.Value
		}
	}
	return out
}

func (t *tableAdapter) GetItem(ctx context.Context, table string, key map[string]string) (map[string]string, bool, error) {
	out, err := t.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(table),
		Key:       toAttrMap(key),
	})
	if err != nil {
		return nil, false, classify("nosql.GetItem", err)
	}
	if out.Item == nil {
		return nil, false, nil
	}
	return fromAttrMap(out.Item), true, nil
}

func (t *tableAdapter) PutItem(ctx context.Context, table string, item map[string]string) error {
	_, err := t.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      toAttrMap(item),
	})
	return classify("nosql.PutItem", err)
}

func (t *tableAdapter) DeleteItem(ctx context.Context, table string, key map[string]string) error {
	_, err := t.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(table),
		Key:       toAttrMap(key),
	})
	return classify("nosql.DeleteItem", err)
}

// tableScanner lazily pages through a Scan, fetching the next page only
// when the buffered rows from the previous page are exhausted (§4.A:
// "scan(table, filter) -> lazy sequence").
type tableScanner struct {
	client    *dynamodb.Client
	table     string
	filter    map[string]string
	buffer    []map[string]types.AttributeValue
	pos       int
	lastKey   map[string]types.AttributeValue
	exhausted bool
	started   bool
}

func (t *tableAdapter) Scan(ctx context.Context, table string, filter map[string]string) (TableScanner, error) {
	return &tableScanner{client: t.client, table: table, filter: filter}, nil
}

func (s *tableScanner) fetchNext(ctx context.Context) error {
	input := &dynamodb.ScanInput{
		TableName:         aws.String(s.table),
		ExclusiveStartKey: s.lastKey,
	}
	if len(s.filter) > 0 {
		expr := ""
		values := map[string]types.AttributeValue{}
		i := 0
		for k, v := range s.filter {
			placeholder := ":f" + string(rune('a'+i))
			if i > 0 {
				expr += " AND "
			}
			expr += k + " = " + placeholder
			values[placeholder] = &types.AttributeValueMemberS{Value: v}
			i++
		}
		input.FilterExpression = aws.String(expr)
		input.ExpressionAttributeValues = values
	}
	out, err := s.client.Scan(ctx, input)
	if err != nil {
		return classify("nosql.Scan", err)
	}
	s.buffer = out.Items
	s.pos = 0
	s.lastKey = out.LastEvaluatedKey
	if len(s.lastKey) == 0 {
		s.exhausted = true
	}
	s.started = true
	return nil
}

// Next returns the next scanned row, fetching another page transparently
// when the current one is exhausted. The second return is false once the
// scan has no more rows.
func (s *tableScanner) Next(ctx context.Context) (map[string]string, bool, error) {
	for s.pos >= len(s.buffer) {
		if s.started && s.exhausted {
			return nil, false, nil
		}
		if err := s.fetchNext(ctx); err != nil {
			return nil, false, err
		}
		if len(s.buffer) == 0 && s.exhausted {
			return nil, false, nil
		}
	}
	row := s.buffer[s.pos]
	s.pos++
	return fromAttrMap(row), true, nil
}
