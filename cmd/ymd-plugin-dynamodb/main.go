// ymd-plugin-dynamodb is a plugin executable speaking
// internal/plugin's JSON-over-stdio protocol: one request per stdin
// line, one response per stdout line, each request naming a DynamoDB
// operation and its parameters. Grounded on the teacher copy of this
// file, adapted to share its wire-format types with internal/plugin
// instead of redeclaring them.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"

	"github.com/emptyland/ymd-sub000/internal/plugin"
)

var (
	clients     = make(map[string]*dynamodb.Client)
	clientsLock sync.Mutex
)

func main() {
	scanner := bufio.NewScanner(os.Stdin)
	encoder := json.NewEncoder(os.Stdout)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req plugin.Request
		if err := json.Unmarshal(line, &req); err != nil {
			encoder.Encode(plugin.Response{Error: fmt.Sprintf("parse error: %v", err)})
			continue
		}

		result, err := handleRequest(req)
		resp := plugin.Response{Result: result}
		if err != nil {
			resp.Error = err.Error()
		}
		if err := encoder.Encode(resp); err != nil {
			fmt.Fprintf(os.Stderr, "ymd-plugin-dynamodb: encode response: %v\n", err)
		}
	}
}

func handleRequest(req plugin.Request) (interface{}, error) {
	switch req.Method {
	case "connect":
		return handleConnect(req.Params)
	case "put_item":
		return handlePutItem(req.Params)
	case "get_item":
		return handleGetItem(req.Params)
	case "update_item":
		return handleUpdateItem(req.Params)
	case "delete_item":
		return handleDeleteItem(req.Params)
	case "scan":
		return handleScan(req.Params)
	case "query":
		return handleQuery(req.Params)
	default:
		return nil, fmt.Errorf("unknown method: %s", req.Method)
	}
}

func handleConnect(params []interface{}) (interface{}, error) {
	if len(params) < 1 {
		return nil, fmt.Errorf("expected an options map")
	}
	options, ok := params[0].(map[string]interface{})
	if !ok {
		options = make(map[string]interface{})
	}

	region := "us-east-1"
	if r, ok := options["region"].(string); ok {
		region = r
	}

	cfg, err := config.LoadDefaultConfig(context.TODO(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := dynamodb.NewFromConfig(cfg)
	clientID := uuid.New().String()

	clientsLock.Lock()
	clients[clientID] = client
	clientsLock.Unlock()

	return clientID, nil
}

func handlePutItem(params []interface{}) (interface{}, error) {
	if len(params) < 3 {
		return nil, fmt.Errorf("expected client_id, table, item")
	}
	clientID, _ := params[0].(string)
	tableName, _ := params[1].(string)
	itemMap, ok := params[2].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("item must be a map")
	}

	client := getClient(clientID)
	if client == nil {
		return nil, fmt.Errorf("client not found: %s", clientID)
	}

	av, err := attributevalue.MarshalMap(itemMap)
	if err != nil {
		return nil, fmt.Errorf("marshaling item: %w", err)
	}

	_, err = client.PutItem(context.TODO(), &dynamodb.PutItemInput{
		TableName: aws.String(tableName),
		Item:      av,
	})
	if err != nil {
		return nil, err
	}
	return true, nil
}

func handleGetItem(params []interface{}) (interface{}, error) {
	if len(params) < 3 {
		return nil, fmt.Errorf("expected client_id, table, key")
	}
	clientID, _ := params[0].(string)
	tableName, _ := params[1].(string)
	keyMap, ok := params[2].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("key must be a map")
	}

	client := getClient(clientID)
	if client == nil {
		return nil, fmt.Errorf("client not found: %s", clientID)
	}

	avKey, err := attributevalue.MarshalMap(keyMap)
	if err != nil {
		return nil, fmt.Errorf("marshaling key: %w", err)
	}

	out, err := client.GetItem(context.TODO(), &dynamodb.GetItemInput{
		TableName: aws.String(tableName),
		Key:       avKey,
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, nil
	}

	var resMap map[string]interface{}
	if err := attributevalue.UnmarshalMap(out.Item, &resMap); err != nil {
		return nil, fmt.Errorf("unmarshaling result: %w", err)
	}
	return resMap, nil
}

func handleDeleteItem(params []interface{}) (interface{}, error) {
	if len(params) < 3 {
		return nil, fmt.Errorf("expected client_id, table, key")
	}
	clientID, _ := params[0].(string)
	tableName, _ := params[1].(string)
	keyMap, ok := params[2].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("key must be a map")
	}

	client := getClient(clientID)
	if client == nil {
		return nil, fmt.Errorf("client not found: %s", clientID)
	}

	avKey, err := attributevalue.MarshalMap(keyMap)
	if err != nil {
		return nil, fmt.Errorf("marshaling key: %w", err)
	}

	_, err = client.DeleteItem(context.TODO(), &dynamodb.DeleteItemInput{
		TableName: aws.String(tableName),
		Key:       avKey,
	})
	if err != nil {
		return nil, err
	}
	return true, nil
}

func handleUpdateItem(params []interface{}) (interface{}, error) {
	if len(params) < 5 {
		return nil, fmt.Errorf("expected client_id, table, key, updateExpr, exprAttrValues")
	}
	clientID, _ := params[0].(string)
	tableName, _ := params[1].(string)
	keyMap, ok := params[2].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("key must be a map")
	}
	updateExpr, _ := params[3].(string)
	exprAttrVals, ok := params[4].(map[string]interface{})
	if !ok {
		exprAttrVals = make(map[string]interface{})
	}

	client := getClient(clientID)
	if client == nil {
		return nil, fmt.Errorf("client not found: %s", clientID)
	}

	avKey, err := attributevalue.MarshalMap(keyMap)
	if err != nil {
		return nil, fmt.Errorf("marshaling key: %w", err)
	}
	avVals, err := attributevalue.MarshalMap(exprAttrVals)
	if err != nil {
		return nil, fmt.Errorf("marshaling expression values: %w", err)
	}

	_, err = client.UpdateItem(context.TODO(), &dynamodb.UpdateItemInput{
		TableName:                 aws.String(tableName),
		Key:                       avKey,
		UpdateExpression:          aws.String(updateExpr),
		ExpressionAttributeValues: avVals,
	})
	if err != nil {
		return nil, err
	}
	return true, nil
}

func handleScan(params []interface{}) (interface{}, error) {
	if len(params) < 2 {
		return nil, fmt.Errorf("expected client_id, table")
	}
	clientID, _ := params[0].(string)
	tableName, _ := params[1].(string)

	client := getClient(clientID)
	if client == nil {
		return nil, fmt.Errorf("client not found: %s", clientID)
	}

	out, err := client.Scan(context.TODO(), &dynamodb.ScanInput{TableName: aws.String(tableName)})
	if err != nil {
		return nil, err
	}

	var items []map[string]interface{}
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
		return nil, fmt.Errorf("unmarshaling items: %w", err)
	}
	return items, nil
}

func handleQuery(params []interface{}) (interface{}, error) {
	if len(params) < 4 {
		return nil, fmt.Errorf("expected client_id, table, keyCondition, exprValues")
	}
	clientID, _ := params[0].(string)
	tableName, _ := params[1].(string)
	keyCond, _ := params[2].(string)
	valMap, ok := params[3].(map[string]interface{})
	if !ok {
		valMap = make(map[string]interface{})
	}

	client := getClient(clientID)
	if client == nil {
		return nil, fmt.Errorf("client not found: %s", clientID)
	}

	avVals, err := attributevalue.MarshalMap(valMap)
	if err != nil {
		return nil, fmt.Errorf("marshaling query values: %w", err)
	}

	out, err := client.Query(context.TODO(), &dynamodb.QueryInput{
		TableName:                 aws.String(tableName),
		KeyConditionExpression:    aws.String(keyCond),
		ExpressionAttributeValues: avVals,
	})
	if err != nil {
		return nil, err
	}

	var items []map[string]interface{}
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
		return nil, fmt.Errorf("unmarshaling items: %w", err)
	}
	return items, nil
}

func getClient(id string) *dynamodb.Client {
	clientsLock.Lock()
	defer clientsLock.Unlock()
	return clients[id]
}
