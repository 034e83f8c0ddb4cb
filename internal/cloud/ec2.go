package cloud

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// EnsureSecurityGroup creates a security group in the default VPC with an
// ingress rule for the database port, reusing an existing group by name.
func (c *Client) EnsureSecurityGroup(ctx context.Context, name, description string, port int32) (string, error) {
	out, err := c.ec2Client.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("group-name"), Values: []string{name}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("describing security group %s: %w", name, err)
	}
	if len(out.SecurityGroups) > 0 {
		return aws.ToString(out.SecurityGroups[0].GroupId), nil
	}

	vpcID, err := c.defaultVPC(ctx)
	if err != nil {
		return "", err
	}

	created, err := c.ec2Client.CreateSecurityGroup(ctx, &ec2.CreateSecurityGroupInput{
		GroupName:   aws.String(name),
		Description: aws.String(description),
		VpcId:       aws.String(vpcID),
	})
	if err != nil {
		return "", fmt.Errorf("creating security group %s: %w", name, err)
	}
	groupID := aws.ToString(created.GroupId)

	_, err = c.ec2Client.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
		GroupId:    aws.String(groupID),
		IpProtocol: aws.String("tcp"),
		FromPort:   aws.Int32(port),
		ToPort:     aws.Int32(port),
		CidrIp:     aws.String("0.0.0.0/0"),
	})
	if err != nil && !IsAlreadyExists(err) {
		return "", fmt.Errorf("authorizing ingress on %s: %w", groupID, err)
	}

	return groupID, nil
}

// DeleteSecurityGroup deletes a security group by id.
func (c *Client) DeleteSecurityGroup(ctx context.Context, id string) error {
	_, err := c.ec2Client.DeleteSecurityGroup(ctx, &ec2.DeleteSecurityGroupInput{
		GroupId: aws.String(id),
	})
	if err != nil {
		return fmt.Errorf("deleting security group %s: %w", id, err)
	}
	return nil
}

func (c *Client) defaultVPC(ctx context.Context) (string, error) {
	out, err := c.ec2Client.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("isDefault"), Values: []string{"true"}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("describing default VPC: %w", err)
	}
	if len(out.Vpcs) == 0 {
		return "", fmt.Errorf("no default VPC in region %s", c.cfg.Region)
	}
	return aws.ToString(out.Vpcs[0].VpcId), nil
}
