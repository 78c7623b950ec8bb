// Package testutil holds in-memory fakes of the AWS interfaces used by the
// stores, for tests only.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoDB is an in-memory DynamoDB supporting the expression shapes the
// stores emit: SET lists with plain assignments and
// if_not_exists(a, :zero) + :inc, and conditions attribute_not_exists(a),
// attribute_exists(a) and a = :v.
type DynamoDB struct {
	mu     sync.Mutex
	keys   map[string]string // table -> partition key attribute
	Tables map[string]map[string]map[string]types.AttributeValue

	// Err, when set, is returned by every call.
	Err error
	// Calls counts invocations per operation name.
	Calls map[string]int
}

// NewDynamoDB returns a fake for the given table -> partition key mapping.
func NewDynamoDB(keys map[string]string) *DynamoDB {
	d := &DynamoDB{
		keys:   keys,
		Tables: map[string]map[string]map[string]types.AttributeValue{},
		Calls:  map[string]int{},
	}
	for t := range keys {
		d.Tables[t] = map[string]map[string]types.AttributeValue{}
	}
	return d
}

// Item returns a stored item or nil.
func (d *DynamoDB) Item(table, pk string) map[string]types.AttributeValue {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Tables[table][pk]
}

// String returns a string attribute of a stored item.
func (d *DynamoDB) String(table, pk, attr string) string {
	item := d.Item(table, pk)
	if s, ok := item[attr].(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func (d *DynamoDB) PutItem(ctx context.Context, in *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls["PutItem"]++
	if d.Err != nil {
		return nil, d.Err
	}
	if err := d.checkPut(*in.TableName, in.Item, in.ConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues); err != nil {
		return nil, err
	}
	d.applyPut(*in.TableName, in.Item)
	return &dyn.PutItemOutput{}, nil
}

func (d *DynamoDB) GetItem(ctx context.Context, in *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls["GetItem"]++
	if d.Err != nil {
		return nil, d.Err
	}
	pk, err := d.pkValue(*in.TableName, in.Key)
	if err != nil {
		return nil, err
	}
	item, ok := d.Tables[*in.TableName][pk]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: copyItem(item)}, nil
}

func (d *DynamoDB) UpdateItem(ctx context.Context, in *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls["UpdateItem"]++
	if d.Err != nil {
		return nil, d.Err
	}
	item, err := d.checkUpdate(*in.TableName, in.Key, in.ConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if err := d.applyUpdate(*in.TableName, in.Key, item, *in.UpdateExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues); err != nil {
		return nil, err
	}
	return &dyn.UpdateItemOutput{Attributes: copyItem(item)}, nil
}

func (d *DynamoDB) TransactWriteItems(ctx context.Context, in *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls["TransactWriteItems"]++
	if d.Err != nil {
		return nil, d.Err
	}

	reasons := make([]types.CancellationReason, len(in.TransactItems))
	canceled := false
	for i, it := range in.TransactItems {
		var err error
		switch {
		case it.Put != nil:
			p := it.Put
			err = d.checkPut(*p.TableName, p.Item, p.ConditionExpression, p.ExpressionAttributeNames, p.ExpressionAttributeValues)
		case it.Update != nil:
			u := it.Update
			_, err = d.checkUpdate(*u.TableName, u.Key, u.ConditionExpression, u.ExpressionAttributeNames, u.ExpressionAttributeValues)
		}
		code := "None"
		if err != nil {
			var ccf *types.ConditionalCheckFailedException
			if !errors.As(err, &ccf) {
				return nil, err
			}
			code = "ConditionalCheckFailed"
			canceled = true
		}
		reasons[i] = types.CancellationReason{Code: &code}
	}
	if canceled {
		return nil, &types.TransactionCanceledException{CancellationReasons: reasons}
	}

	for _, it := range in.TransactItems {
		switch {
		case it.Put != nil:
			d.applyPut(*it.Put.TableName, it.Put.Item)
		case it.Update != nil:
			u := it.Update
			item := d.Tables[*u.TableName][mustPK(d, *u.TableName, u.Key)]
			if err := d.applyUpdate(*u.TableName, u.Key, item, *u.UpdateExpression, u.ExpressionAttributeNames, u.ExpressionAttributeValues); err != nil {
				return nil, err
			}
		}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

func (d *DynamoDB) pkValue(table string, key map[string]types.AttributeValue) (string, error) {
	name, ok := d.keys[table]
	if !ok {
		return "", fmt.Errorf("unknown table %q", table)
	}
	attr, ok := key[name].(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("missing key attribute %q", name)
	}
	return attr.Value, nil
}

func mustPK(d *DynamoDB, table string, key map[string]types.AttributeValue) string {
	pk, _ := d.pkValue(table, key)
	return pk
}

func (d *DynamoDB) checkPut(table string, item map[string]types.AttributeValue, cond *string, names map[string]string, values map[string]types.AttributeValue) error {
	pk, err := d.pkValue(table, item)
	if err != nil {
		return err
	}
	existing := d.Tables[table][pk]
	return evalCondition(cond, existing, names, values)
}

func (d *DynamoDB) applyPut(table string, item map[string]types.AttributeValue) {
	pk, _ := d.pkValue(table, item)
	d.Tables[table][pk] = copyItem(item)
}

func (d *DynamoDB) checkUpdate(table string, key map[string]types.AttributeValue, cond *string, names map[string]string, values map[string]types.AttributeValue) (map[string]types.AttributeValue, error) {
	pk, err := d.pkValue(table, key)
	if err != nil {
		return nil, err
	}
	existing := d.Tables[table][pk]
	if err := evalCondition(cond, existing, names, values); err != nil {
		return nil, err
	}
	if existing == nil {
		existing = copyItem(key)
	}
	return existing, nil
}

func (d *DynamoDB) applyUpdate(table string, key, item map[string]types.AttributeValue, expr string, names map[string]string, values map[string]types.AttributeValue) error {
	if item == nil {
		item = copyItem(key)
	}
	body, ok := strings.CutPrefix(strings.TrimSpace(expr), "SET ")
	if !ok {
		return fmt.Errorf("unsupported update expression %q", expr)
	}
	for _, clause := range splitTopLevel(body) {
		lhs, rhs, ok := strings.Cut(clause, "=")
		if !ok {
			return fmt.Errorf("unsupported clause %q", clause)
		}
		attr := resolveName(strings.TrimSpace(lhs), names)
		rhs = strings.TrimSpace(rhs)
		if strings.HasPrefix(rhs, "if_not_exists(") {
			inner, inc, _ := strings.Cut(rhs, ")")
			args := strings.Split(strings.TrimPrefix(inner, "if_not_exists("), ",")
			base := values[strings.TrimSpace(args[1])]
			if cur, ok := item[attr]; ok {
				base = cur
			}
			inc = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(inc), "+"))
			item[attr] = addNumbers(base, values[inc])
			continue
		}
		v, ok := values[rhs]
		if !ok {
			return fmt.Errorf("missing value %q", rhs)
		}
		item[attr] = v
	}
	pk, _ := d.pkValue(table, key)
	d.Tables[table][pk] = item
	return nil
}

func evalCondition(cond *string, existing map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) error {
	if cond == nil || *cond == "" {
		return nil
	}
	c := strings.TrimSpace(*cond)
	fail := &types.ConditionalCheckFailedException{Message: &c}
	switch {
	case strings.HasPrefix(c, "attribute_not_exists("):
		attr := resolveName(strings.TrimSuffix(strings.TrimPrefix(c, "attribute_not_exists("), ")"), names)
		if _, ok := existing[attr]; ok {
			return fail
		}
		return nil
	case strings.HasPrefix(c, "attribute_exists("):
		attr := resolveName(strings.TrimSuffix(strings.TrimPrefix(c, "attribute_exists("), ")"), names)
		if _, ok := existing[attr]; !ok {
			return fail
		}
		return nil
	}
	lhs, rhs, ok := strings.Cut(c, "=")
	if !ok {
		return fmt.Errorf("unsupported condition %q", c)
	}
	attr := resolveName(strings.TrimSpace(lhs), names)
	want, ok := values[strings.TrimSpace(rhs)].(*types.AttributeValueMemberS)
	if !ok {
		return fmt.Errorf("unsupported condition value in %q", c)
	}
	got, ok := existing[attr].(*types.AttributeValueMemberS)
	if !ok || got.Value != want.Value {
		return fail
	}
	return nil
}

func resolveName(n string, names map[string]string) string {
	n = strings.TrimSpace(n)
	if strings.HasPrefix(n, "#") {
		if r, ok := names[n]; ok {
			return r
		}
	}
	return n
}

func splitTopLevel(s string) []string {
	var out []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	return append(out, strings.TrimSpace(s[start:]))
}

func addNumbers(a, b types.AttributeValue) types.AttributeValue {
	x, _ := a.(*types.AttributeValueMemberN)
	y, _ := b.(*types.AttributeValueMemberN)
	var xv, yv int64
	if x != nil {
		xv, _ = strconv.ParseInt(x.Value, 10, 64)
	}
	if y != nil {
		yv, _ = strconv.ParseInt(y.Value, 10, 64)
	}
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(xv+yv, 10)}
}

func copyItem(in map[string]types.AttributeValue) map[string]types.AttributeValue {
	if in == nil {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
